package main

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// wavRecorder captures the single mixed audio stream TickFrame emits to a
// 16-bit mono WAV file, generalizing the teacher's per-channel
// channel.createEncoder/channel.process pair to the one stream this
// module's sample sink produces.
type wavRecorder struct {
	f   *os.File
	enc *wav.Encoder
}

func newWAVRecorder(path string, sampleRate int) (*wavRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("newWAVRecorder: %w", err)
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	return &wavRecorder{f: f, enc: enc}, nil
}

func (r *wavRecorder) Write(samples []int16) error {
	for _, s := range samples {
		if err := r.enc.WriteFrame(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *wavRecorder) Close() error {
	if err := r.enc.Close(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
