package encoder

import (
	"bytes"
	"testing"
)

func TestFlacEncoderEmpty(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf, 16000, 1)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if buf.Len() < 4 || buf.String()[:4] != "fLaC" {
		t.Error("output does not start with FLAC magic")
	}
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf, 16000, 1)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	partial := make([]int16, BlockSize/4)
	for i := range partial {
		partial[i] = int16(i % 1000)
	}

	if err := enc.EncodeBlock(partial); err != nil {
		t.Fatalf("EncodeBlock partial: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != uint64(len(partial)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(partial))
	}
}

func TestFlacEncoderStereo(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf, 44100, 2)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	block := make([]int16, 2*1000)
	for i := range block {
		block[i] = int16(i)
	}
	if err := enc.EncodeBlock(block); err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != 1000 {
		t.Errorf("TotalFrames = %d, want 1000", enc.TotalFrames())
	}
}

func TestFlacEncoderRejectsOversizedBlock(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.EncodeBlock(make([]int16, BlockSize+1)); err == nil {
		t.Error("expected error for oversized block")
	}
}

func TestNewFlacChannels(t *testing.T) {
	if _, err := NewFlac(&bytes.Buffer{}, 16000, 3); err == nil {
		t.Error("expected error for 3 channels")
	}
}
