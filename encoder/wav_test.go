package encoder

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestWAVFileReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16((i * 37) % 20000)
	}
	if err := WriteWAV(f, samples, 16000, 1); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	f.Close()

	got, rate, ch, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if rate != 16000 || ch != 1 {
		t.Errorf("format = %d Hz x %d, want 16000 x 1", rate, ch)
	}
	if !slices.Equal(got, samples) {
		t.Error("samples differ after read back")
	}
}

func TestWriteFormats(t *testing.T) {
	samples := make([]int16, BlockSize*2+100)
	for _, f := range []Format{FormatWAV, FormatFLAC} {
		t.Run(string(f), func(t *testing.T) {
			out, err := os.Create(filepath.Join(t.TempDir(), "audio."+f.Ext()))
			if err != nil {
				t.Fatal(err)
			}
			defer out.Close()
			if err := Write(out, f, samples, 16000, 1); err != nil {
				t.Fatalf("Write: %v", err)
			}
			st, _ := out.Stat()
			if st.Size() == 0 {
				t.Error("empty output")
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for _, tt := range []struct {
		in      string
		wantErr bool
	}{
		{"wav", false},
		{"flac", false},
		{"mp3", true},
		{"", true},
	} {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) err = %v", tt.in, err)
			}
		})
	}
}
