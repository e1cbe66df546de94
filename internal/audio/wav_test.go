package audio

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDecodeWAV_RoundTrip(t *testing.T) {
	format := Format{Channels: 2, SampleWidth: 2, SampleRate: 16000}
	clip, err := NewClip(format, make([]byte, 16000*4))
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}

	decoded, err := DecodeWAV(EncodeWAV(clip))
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decoded.Format != format {
		t.Errorf("Expected format %+v, got %+v", format, decoded.Format)
	}
	if decoded.Frames() != 16000 {
		t.Errorf("Expected 16000 frames, got %d", decoded.Frames())
	}
	if decoded.Duration() != time.Second {
		t.Errorf("Expected 1s duration, got %v", decoded.Duration())
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	clip, _ := NewClip(Format{Channels: 1, SampleWidth: 1, SampleRate: 8000}, []byte{1, 2, 3})
	wav := EncodeWAV(clip)

	// Insert an odd sized LIST chunk (padded to even) between fmt and data
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	withList := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)
	binary.LittleEndian.PutUint32(withList[4:8], uint32(len(withList)-8))

	decoded, err := DecodeWAV(withList)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if string(decoded.Data) != string([]byte{1, 2, 3}) {
		t.Errorf("Expected data [1 2 3], got %v", decoded.Data)
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	valid := EncodeWAV(&Clip{Format: Format{Channels: 1, SampleWidth: 2, SampleRate: 8000}, Data: make([]byte, 8)})

	corrupt := func(mutate func(b []byte)) []byte {
		b := append([]byte{}, valid...)
		mutate(b)
		return b
	}

	tests := map[string][]byte{
		"short":        valid[:10],
		"not riff":     corrupt(func(b []byte) { copy(b[0:4], "RIFX") }),
		"not wave":     corrupt(func(b []byte) { copy(b[8:12], "AVI ") }),
		"float format": corrupt(func(b []byte) { binary.LittleEndian.PutUint16(b[20:22], 3) }),
		"six channels": corrupt(func(b []byte) { binary.LittleEndian.PutUint16(b[22:24], 6) }),
		"12 bit":       corrupt(func(b []byte) { binary.LittleEndian.PutUint16(b[34:36], 12) }),
		"zero rate":    corrupt(func(b []byte) { binary.LittleEndian.PutUint32(b[24:28], 0) }),
		"no data":      valid[:36],
	}

	for name, data := range tests {
		if _, err := DecodeWAV(data); !errors.Is(err, ErrInvalidClip) {
			t.Errorf("%s: expected ErrInvalidClip, got %v", name, err)
		}
	}
}

func TestDecodeWAV_TruncatedData(t *testing.T) {
	wav := EncodeWAV(&Clip{Format: Format{Channels: 1, SampleWidth: 2, SampleRate: 8000}, Data: make([]byte, 100)})

	// Declared size exceeds what is present and the last frame is partial
	clip, err := DecodeWAV(wav[:44+51])
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if clip.Frames() != 25 {
		t.Errorf("Expected 25 whole frames, got %d", clip.Frames())
	}
}

func TestLoadClip(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadClip(filepath.Join(dir, "missing.wav")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist, got %v", err)
	}

	bad := filepath.Join(dir, "bad.wav")
	if err := os.WriteFile(bad, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadClip(bad); !errors.Is(err, ErrInvalidClip) {
		t.Errorf("Expected ErrInvalidClip, got %v", err)
	}

	good := filepath.Join(dir, "good.wav")
	clip := &Clip{Format: Format{Channels: 1, SampleWidth: 2, SampleRate: 16000}, Data: make([]byte, 3200)}
	if err := os.WriteFile(good, EncodeWAV(clip), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadClip(good)
	if err != nil {
		t.Fatalf("LoadClip failed: %v", err)
	}
	if loaded.Duration() != 100*time.Millisecond {
		t.Errorf("Expected 100ms clip, got %v", loaded.Duration())
	}
}
