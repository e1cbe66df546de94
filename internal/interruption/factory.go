package interruption

import (
	"github.com/rs/zerolog"
)

// Strategy types understood by FromConfig
const (
	TypeKeyword  = "keyword"
	TypeMinWords = "min_words"
	TypeNever    = "never"
)

// DefaultMinWords is used when a min_words strategy does not set a threshold
const DefaultMinWords = 3

// Config selects and parameterizes one strategy
type Config struct {
	Type     string
	Keywords []string
	MinWords int
}

// FromConfig builds strategies in configuration order. Entries that cannot be built are
// logged and skipped so that a bad entry does not take the service down.
func FromConfig(configs []Config, logger zerolog.Logger) []Strategy {
	strategies := make([]Strategy, 0, len(configs))

	for i, cfg := range configs {
		log := logger.With().Int("index", i).Str("type", cfg.Type).Logger()

		switch cfg.Type {
		case TypeKeyword:
			if len(cfg.Keywords) == 0 {
				log.Warn().Msg("Keyword strategy has no keywords, skipping")
				continue
			}
			k, err := NewKeyword(cfg.Keywords)
			if err != nil {
				log.Warn().Err(err).Msg("Invalid keyword strategy, skipping")
				continue
			}
			strategies = append(strategies, k)

		case TypeMinWords:
			minWords := cfg.MinWords
			if minWords <= 0 {
				minWords = DefaultMinWords
			}
			strategies = append(strategies, NewMinWords(minWords))

		case TypeNever:
			strategies = append(strategies, Never{})

		default:
			log.Warn().Msg("Unknown interruption strategy type, skipping")
		}
	}

	logger.Debug().Int("count", len(strategies)).Msg("Interruption strategies configured")

	return strategies
}
