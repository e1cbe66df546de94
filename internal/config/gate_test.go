package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/interruption"
	"github.com/lexiqai/wake-gate/internal/phrase"
)

const sampleGateFile = `
wake_check:
  enabled: true
  wake_words: ["hey robot", "ok computer"]
  idle_words: ["goodbye"]
  wake_timeout: 2.5
  audio:
    wake_sound: sounds/wake.wav
    idle_sound: /abs/idle.wav
    volume: 0.5
interruption_strategies:
  - type: keyword
    params:
      keywords: ["stop now"]
  - type: min_words
    params:
      min_words: 4
  - type: never
`

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadGateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	writeFile(t, path, []byte(sampleGateFile))

	f, err := LoadGateFile(path)
	if err != nil {
		t.Fatalf("LoadGateFile failed: %v", err)
	}

	if !f.GateEnabled() {
		t.Error("Expected gate to be enabled")
	}
	if len(f.WakeCheck.WakeWords) != 2 || f.WakeCheck.WakeWords[1] != "ok computer" {
		t.Errorf("Unexpected wake words: %v", f.WakeCheck.WakeWords)
	}
	if f.WakeTimeout() != 2500*time.Millisecond {
		t.Errorf("Expected wake timeout 2.5s, got %v", f.WakeTimeout())
	}
	if f.Volume() != 0.5 {
		t.Errorf("Expected volume 0.5, got %v", f.Volume())
	}
	if f.WakeSoundPath() != filepath.Join(dir, "sounds", "wake.wav") {
		t.Errorf("Expected wake sound relative to the config file, got %s", f.WakeSoundPath())
	}
	if f.IdleSoundPath() != "/abs/idle.wav" {
		t.Errorf("Expected absolute idle sound path unchanged, got %s", f.IdleSoundPath())
	}

	configs := f.StrategyConfigs()
	if len(configs) != 3 {
		t.Fatalf("Expected 3 strategies, got %d", len(configs))
	}
	if configs[0].Type != interruption.TypeKeyword || configs[0].Keywords[0] != "stop now" {
		t.Errorf("Unexpected keyword strategy: %+v", configs[0])
	}
	if configs[1].MinWords != 4 {
		t.Errorf("Expected min_words 4, got %d", configs[1].MinWords)
	}
}

func TestParseGateFile_Defaults(t *testing.T) {
	f, err := ParseGateFile([]byte("wake_check:\n  wake_words: [\"hey robot\"]\n"))
	if err != nil {
		t.Fatalf("ParseGateFile failed: %v", err)
	}

	if !f.GateEnabled() {
		t.Error("Expected gate enabled by default")
	}
	if f.WakeTimeout() != 0 {
		t.Errorf("Expected no wake timeout, got %v", f.WakeTimeout())
	}
	if f.Volume() != DefaultVolume {
		t.Errorf("Expected default volume %v, got %v", DefaultVolume, f.Volume())
	}
	if f.WakeSoundPath() != DefaultWakeSound {
		t.Errorf("Expected default wake sound, got %s", f.WakeSoundPath())
	}
	if len(f.StrategyConfigs()) != 0 {
		t.Errorf("Expected no strategies, got %d", len(f.StrategyConfigs()))
	}
}

func TestParseGateFile_Disabled(t *testing.T) {
	f, err := ParseGateFile([]byte("wake_check:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("ParseGateFile failed: %v", err)
	}
	if f.GateEnabled() {
		t.Error("Expected gate to be disabled")
	}
}

func TestParseGateFile_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":           "wake_check: [",
		"no wake words":    "wake_check:\n  idle_words: [bye]\n",
		"negative timeout": "wake_check:\n  wake_words: [hi]\n  wake_timeout: -1\n",
		"loud volume":      "wake_check:\n  wake_words: [hi]\n  audio: {volume: 1.5}\n",
	}

	for name, data := range tests {
		if _, err := ParseGateFile([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseGateFile_InvalidPhrases(t *testing.T) {
	tests := map[string]string{
		"blank wake word": "wake_check:\n  wake_words: [\"  \"]\n",
		"blank idle word": "wake_check:\n  wake_words: [hi]\n  idle_words: [\" \"]\n",
		"blank keyword":   "wake_check:\n  wake_words: [hi]\ninterruption_strategies:\n  - type: keyword\n    params:\n      keywords: [stop, \"\"]\n",
	}

	for name, data := range tests {
		_, err := ParseGateFile([]byte(data))
		if !errors.Is(err, phrase.ErrEmptyPhrase) {
			t.Errorf("%s: expected ErrEmptyPhrase, got %v", name, err)
		}
	}

	// Idle words are not compiled while gating is off
	if _, err := ParseGateFile([]byte("wake_check:\n  enabled: false\n  idle_words: [\"\"]\n")); err != nil {
		t.Errorf("Expected disabled gate to load, got %v", err)
	}
}

func TestLoadGateFile_Missing(t *testing.T) {
	if _, err := LoadGateFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadCues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	writeFile(t, path, []byte("wake_check:\n  wake_words: [\"hey robot\"]\n  audio:\n    wake_sound: cues/wake.wav\n    idle_sound: cues/idle.wav\n"))

	clip, _ := audio.NewClip(audio.Format{Channels: 1, SampleWidth: 2, SampleRate: 16000}, make([]byte, 320))
	writeFile(t, filepath.Join(dir, "cues", "wake.wav"), audio.EncodeWAV(clip))

	f, err := LoadGateFile(path)
	if err != nil {
		t.Fatalf("LoadGateFile failed: %v", err)
	}

	cues, err := f.LoadCues(zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadCues failed: %v", err)
	}
	if cues.Wake == nil {
		t.Error("Expected wake clip to be loaded")
	}
	if cues.Idle != nil {
		t.Error("Expected missing idle clip to be skipped")
	}
	if cues.Volume != DefaultVolume {
		t.Errorf("Expected default volume, got %v", cues.Volume)
	}

	// An existing but invalid file is fatal
	writeFile(t, filepath.Join(dir, "cues", "idle.wav"), []byte("not a wav"))
	_, err = f.LoadCues(zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "idle.wav") {
		t.Errorf("Expected error naming idle.wav, got %v", err)
	}
}
