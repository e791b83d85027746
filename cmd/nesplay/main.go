// Command nesplay is a minimal SDL2 front end for the nes package: it
// loads a ROM, runs it at full speed with video and audio, and optionally
// captures the mixed audio stream to a WAV file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/nescore/nes/nes"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var keyboardMapping = map[sdl.Keycode]nes.Button{
	sdl.K_a:      nes.ButtonA,
	sdl.K_z:      nes.ButtonB,
	sdl.K_RETURN: nes.ButtonStart,
	sdl.K_RSHIFT: nes.ButtonSelect,
	sdl.K_UP:     nes.ButtonUp,
	sdl.K_DOWN:   nes.ButtonDown,
	sdl.K_LEFT:   nes.ButtonLeft,
	sdl.K_RIGHT:  nes.ButtonRight,
}

func loadROM(path string) (*nes.NES, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open rom: %w", err)
	}
	defer f.Close()
	return nes.FromROM(f)
}

func run(romPath string, trace bool, zoom int, wavPath string) error {
	console, err := loadROM(romPath)
	if err != nil {
		return err
	}

	if trace {
		console.SetTrace(os.Stderr)
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO | sdl.INIT_GAMECONTROLLER | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("unable to init sdl: %w", err)
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("nesplay", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(256*zoom), int32(240*zoom), sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return fmt.Errorf("unable to create window: %w", err)
	}
	defer window.Destroy()

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	defer renderer.Destroy()

	texture, err := renderer.CreateTexture(sdl.PIXELFORMAT_ARGB8888, sdl.TEXTUREACCESS_STREAMING, 256, 240)
	if err != nil {
		return fmt.Errorf("unable to create texture: %w", err)
	}
	defer texture.Destroy()

	audioSpec := sdl.AudioSpec{Freq: nes.SampleRate, Format: sdl.AUDIO_S16SYS, Channels: 1, Samples: 2048}
	audioDevice, err := sdl.OpenAudioDevice("", false, &audioSpec, nil, 0)
	if err != nil {
		return fmt.Errorf("unable to open audio device: %w", err)
	}
	defer sdl.CloseAudioDevice(audioDevice)
	sdl.PauseAudioDevice(audioDevice, false)

	var recorder *wavRecorder
	if wavPath != "" {
		recorder, err = newWAVRecorder(wavPath, nes.SampleRate)
		if err != nil {
			return fmt.Errorf("unable to start wav capture: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Printf("nesplay: closing wav capture: %s", err)
			}
		}()
	}

	fb := make([]uint32, 256*240)
	var samples []int16
	sink := func(s int16) { samples = append(samples, s) }

	buttons := uint8(0)
	running := true
	for running {
		for evt := sdl.PollEvent(); evt != nil; evt = sdl.PollEvent() {
			switch evt := evt.(type) {
			case *sdl.QuitEvent:
				running = false
			case *sdl.KeyboardEvent:
				btn, ok := keyboardMapping[evt.Keysym.Sym]
				if !ok {
					continue
				}
				if evt.Type == sdl.KEYDOWN {
					buttons |= uint8(btn)
				} else {
					buttons &^= uint8(btn)
				}
			}
		}
		console.SetButtons(0, nes.Button(buttons))

		samples = samples[:0]
		console.TickFrame(sink, fb)

		if recorder != nil {
			if err := recorder.Write(samples); err != nil {
				return fmt.Errorf("writing wav capture: %w", err)
			}
		}

		if len(samples) > 0 {
			buf := make([]byte, len(samples)*2)
			for i, s := range samples {
				buf[i*2] = byte(s)
				buf[i*2+1] = byte(s >> 8)
			}
			if err := sdl.QueueAudio(audioDevice, buf); err != nil {
				log.Printf("nesplay: queueing audio: %s", err)
			}
		}

		pix, _, err := texture.Lock(nil)
		if err != nil {
			return fmt.Errorf("unable to lock texture: %w", err)
		}
		for i, px := range fb {
			pix[i*4] = byte(px)
			pix[i*4+1] = byte(px >> 8)
			pix[i*4+2] = byte(px >> 16)
			pix[i*4+3] = byte(px >> 24)
		}
		texture.Unlock()

		renderer.Clear()
		renderer.Copy(texture, nil, nil)
		renderer.Present()
	}

	return nil
}

func main() {
	trace := flag.Bool("trace", false, "write a CPU execution trace to stderr")
	zoom := flag.Int("zoom", 3, "window scale factor")
	wavPath := flag.String("record", "", "capture the mixed audio stream to this WAV file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: nesplay [flags] rom.nes")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *trace, *zoom, *wavPath); err != nil {
		log.Fatal(err)
	}
}
