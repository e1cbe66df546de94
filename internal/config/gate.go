package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/interruption"
	"github.com/lexiqai/wake-gate/internal/phrase"
)

// Defaults applied when the gate file leaves a value out
const (
	DefaultWakeSound = "sounds/wake.wav"
	DefaultIdleSound = "sounds/idle.wav"
	DefaultVolume    = 0.8
)

// GateFile is the YAML file describing wake/idle gating and interruption strategies
type GateFile struct {
	WakeCheck              WakeCheck       `yaml:"wake_check"`
	InterruptionStrategies []StrategyEntry `yaml:"interruption_strategies"`

	// Directory relative sound paths are resolved against
	dir string
}

// WakeCheck configures the gate
type WakeCheck struct {
	Enabled     *bool     `yaml:"enabled"`
	WakeWords   []string  `yaml:"wake_words"`
	IdleWords   []string  `yaml:"idle_words"`
	WakeTimeout float64   `yaml:"wake_timeout"` // seconds, 0 disables
	Audio       AudioCues `yaml:"audio"`
}

// AudioCues names the WAV files played on transitions
type AudioCues struct {
	WakeSound string   `yaml:"wake_sound"`
	IdleSound string   `yaml:"idle_sound"`
	Volume    *float64 `yaml:"volume"`
}

// StrategyEntry selects one interruption strategy
type StrategyEntry struct {
	Type   string         `yaml:"type"`
	Params StrategyParams `yaml:"params"`
}

// StrategyParams holds the parameters of every strategy type
type StrategyParams struct {
	Keywords []string `yaml:"keywords"`
	MinWords int      `yaml:"min_words"`
}

// LoadGateFile reads and validates a gate file
func LoadGateFile(path string) (*GateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gate config: %w", err)
	}

	f, err := ParseGateFile(data)
	if err != nil {
		return nil, fmt.Errorf("gate config %s: %w", path, err)
	}
	f.dir = filepath.Dir(path)

	return f, nil
}

// ParseGateFile decodes a gate file. Relative sound paths resolve against the working directory.
func ParseGateFile(data []byte) (*GateFile, error) {
	var f GateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse gate config: %w", err)
	}

	if f.WakeCheck.WakeTimeout < 0 {
		return nil, fmt.Errorf("wake_timeout must not be negative, got %v", f.WakeCheck.WakeTimeout)
	}
	if v := f.WakeCheck.Audio.Volume; v != nil && (*v < 0 || *v > 1) {
		return nil, fmt.Errorf("volume must be between 0 and 1, got %v", *v)
	}
	if f.GateEnabled() {
		if len(f.WakeCheck.WakeWords) == 0 {
			return nil, errors.New("wake_check is enabled but has no wake_words")
		}
		if _, err := phrase.CompileAll(f.WakeCheck.WakeWords); err != nil {
			return nil, fmt.Errorf("invalid wake_words: %w", err)
		}
		if _, err := phrase.CompileAll(f.WakeCheck.IdleWords); err != nil {
			return nil, fmt.Errorf("invalid idle_words: %w", err)
		}
	}
	for i, s := range f.InterruptionStrategies {
		if s.Type != interruption.TypeKeyword {
			continue
		}
		if _, err := phrase.CompileAll(s.Params.Keywords); err != nil {
			return nil, fmt.Errorf("interruption_strategies[%d]: invalid keywords: %w", i, err)
		}
	}

	return &f, nil
}

// GateEnabled reports whether gating is on. It defaults to true.
func (f *GateFile) GateEnabled() bool {
	return f.WakeCheck.Enabled == nil || *f.WakeCheck.Enabled
}

// WakeTimeout returns the configured inactivity timeout
func (f *GateFile) WakeTimeout() time.Duration {
	return time.Duration(f.WakeCheck.WakeTimeout * float64(time.Second))
}

// Volume returns the cue volume
func (f *GateFile) Volume() float64 {
	if f.WakeCheck.Audio.Volume == nil {
		return DefaultVolume
	}
	return *f.WakeCheck.Audio.Volume
}

// WakeSoundPath returns the resolved wake cue path
func (f *GateFile) WakeSoundPath() string {
	return f.resolve(f.WakeCheck.Audio.WakeSound, DefaultWakeSound)
}

// IdleSoundPath returns the resolved idle cue path
func (f *GateFile) IdleSoundPath() string {
	return f.resolve(f.WakeCheck.Audio.IdleSound, DefaultIdleSound)
}

func (f *GateFile) resolve(path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) || f.dir == "" {
		return path
	}
	return filepath.Join(f.dir, path)
}

// StrategyConfigs converts the strategy entries for interruption.FromConfig
func (f *GateFile) StrategyConfigs() []interruption.Config {
	configs := make([]interruption.Config, 0, len(f.InterruptionStrategies))
	for _, s := range f.InterruptionStrategies {
		configs = append(configs, interruption.Config{
			Type:     s.Type,
			Keywords: s.Params.Keywords,
			MinWords: s.Params.MinWords,
		})
	}
	return configs
}

// Cues holds the decoded cue clips. A nil clip means that cue is not played.
type Cues struct {
	Wake   *audio.Clip
	Idle   *audio.Clip
	Volume float64
}

// LoadCues loads the wake and idle clips. A missing file is logged and skipped;
// a file that exists but is not a usable WAV is an error.
func (f *GateFile) LoadCues(logger zerolog.Logger) (*Cues, error) {
	cues := &Cues{Volume: f.Volume()}

	var err error
	if cues.Wake, err = loadOptionalClip(f.WakeSoundPath(), "wake", logger); err != nil {
		return nil, err
	}
	if cues.Idle, err = loadOptionalClip(f.IdleSoundPath(), "idle", logger); err != nil {
		return nil, err
	}

	return cues, nil
}

func loadOptionalClip(path, cue string, logger zerolog.Logger) (*audio.Clip, error) {
	clip, err := audio.LoadClip(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str("cue", cue).Str("path", path).Msg("Cue audio file not found, cue disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	logger.Info().Str("cue", cue).Str("path", path).Dur("duration", clip.Duration()).Msg("Cue audio loaded")
	return clip, nil
}
