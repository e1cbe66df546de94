package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/wake-gate/internal/audio"
	"github.com/lexiqai/wake-gate/internal/config"
	"github.com/lexiqai/wake-gate/internal/gate"
	"github.com/lexiqai/wake-gate/internal/notify"
	"github.com/lexiqai/wake-gate/internal/observability"
	"github.com/lexiqai/wake-gate/internal/stt"
)

type options struct {
	configFile string
	input      string
	output     string
	cueOutput  string
	realTime   bool
	tick       time.Duration
	maxRunes   int
	logLevel   string
	logPretty  bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a transcription log through the wake gate",
		Long:  "Read JSONL transcription events, gate them with the configured wake and idle words, and write the events that pass as JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReplay(ctx, opts)
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&opts.configFile, "config", "c", config.GetEnv("GATE_CONFIG_FILE", "gate.yaml"), "Gate configuration file")
	rootCmd.Flags().StringVarP(&opts.input, "input", "i", "-", "Transcription log to read, - for stdin")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", "-", "File to write passed events to, - for stdout")
	rootCmd.Flags().StringVar(&opts.cueOutput, "cues", config.CueOutputDiscard, "Where cues play: device or discard")
	rootCmd.Flags().BoolVar(&opts.realTime, "real-time", false, "Wait between events as recorded in their timestamps")
	rootCmd.Flags().DurationVar(&opts.tick, "tick", gate.DefaultTickInterval, "Wake timeout check interval")
	rootCmd.Flags().IntVar(&opts.maxRunes, "max-accumulator", envInt("GATE_MAX_ACCUMULATOR_RUNES", 2048), "Runes kept per participant, 0 for no limit")
	rootCmd.Flags().StringVar(&opts.logLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	rootCmd.Flags().BoolVar(&opts.logPretty, "log-pretty", true, "Human readable logs on stderr")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// envInt reads an integer default for a flag, ignoring values that do not parse
func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(config.GetEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func runReplay(ctx context.Context, opts *options) error {
	if opts.maxRunes < 0 {
		return fmt.Errorf("--max-accumulator must not be negative, got %d", opts.maxRunes)
	}
	logger := observability.NewLogger(os.Stderr, opts.logLevel, opts.logPretty)

	in, closeIn, err := openInput(opts.input)
	if err != nil {
		return err
	}
	defer closeIn()

	out, closeOut, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer closeOut()

	gateFile, err := config.LoadGateFile(opts.configFile)
	if err != nil {
		return err
	}
	cues, err := gateFile.LoadCues(logger)
	if err != nil {
		return err
	}

	var output audio.Output
	switch opts.cueOutput {
	case config.CueOutputDevice:
		device, err := audio.NewDeviceOutput()
		if err != nil {
			return fmt.Errorf("cue output: %w", err)
		}
		defer device.Close()
		output = device
	case config.CueOutputDiscard:
		output = audio.NewDiscardOutput(opts.realTime)
	default:
		return fmt.Errorf("--cues must be device or discard, got %q", opts.cueOutput)
	}

	r := &replayer{
		gateFile: gateFile,
		cues:     cues,
		output:   output,
		realTime: opts.realTime,
		tick:     opts.tick,
		maxRunes: opts.maxRunes,
		logger:   logger,
	}
	return r.run(ctx, in, out)
}

// replayer feeds one transcription log through a gate
type replayer struct {
	gateFile *config.GateFile
	cues     *config.Cues
	output   audio.Output
	realTime bool
	tick     time.Duration
	maxRunes int
	logger   zerolog.Logger
}

func (r *replayer) run(ctx context.Context, in io.Reader, out io.Writer) error {
	down := &writerDownstream{w: stt.NewWriter(out), logger: r.logger}

	if !r.gateFile.GateEnabled() {
		r.logger.Info().Msg("Wake check disabled, copying events")
		return r.copy(ctx, stt.NewReader(in), down.Push)
	}

	cfg := gate.Config{
		WakePhrases:         r.gateFile.WakeCheck.WakeWords,
		IdlePhrases:         r.gateFile.WakeCheck.IdleWords,
		WakeTimeout:         r.gateFile.WakeTimeout(),
		TickInterval:        r.tick,
		MaxAccumulatorRunes: r.maxRunes,
	}

	var notifiers []*notify.AudioNotifier
	for _, cue := range []struct {
		name string
		clip *audio.Clip
		set  func(n notify.Notifier)
	}{
		{"wake", r.cues.Wake, func(n notify.Notifier) { cfg.WakeNotifier = n }},
		{"idle", r.cues.Idle, func(n notify.Notifier) { cfg.IdleNotifier = n }},
	} {
		if cue.clip == nil {
			continue
		}
		n, err := notify.NewAudioNotifier(cue.clip, r.cues.Volume, r.output,
			notify.WithName(cue.name),
			notify.WithLogger(r.logger),
		)
		if err != nil {
			return fmt.Errorf("%s cue: %w", cue.name, err)
		}
		cue.set(n)
		notifiers = append(notifiers, n)
	}

	g, err := gate.New(cfg, down, r.logger)
	if err != nil {
		return err
	}
	defer g.Close()

	if err := r.copy(ctx, stt.NewReader(in), g.Process); err != nil {
		return err
	}

	// Let the last cue finish before exiting
	for _, n := range notifiers {
		if err := n.Wait(ctx); err != nil {
			return err
		}
	}

	snap, err := g.Snapshot(ctx)
	if err != nil {
		return err
	}
	for id, p := range snap {
		r.logger.Info().Str("participant_id", id).Str("state", p.State.String()).Msg("Final participant state")
	}

	return nil
}

func (r *replayer) copy(ctx context.Context, events *stt.Reader, process func(context.Context, stt.Transcription) error) error {
	var last time.Time
	count := 0

	for {
		t, err := events.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if r.realTime && !last.IsZero() && t.Timestamp.After(last) {
			select {
			case <-time.After(t.Timestamp.Sub(last)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !t.Timestamp.IsZero() {
			last = t.Timestamp
		}

		if err := process(ctx, t); err != nil {
			return err
		}
		count++
	}

	r.logger.Info().Int("events", count).Msg("Replay finished")
	return nil
}

// writerDownstream writes passed events as JSONL and logs error frames
type writerDownstream struct {
	w      *stt.Writer
	logger zerolog.Logger
}

func (d *writerDownstream) Push(ctx context.Context, t stt.Transcription) error {
	return d.w.Write(t)
}

func (d *writerDownstream) PushError(ctx context.Context, frame gate.ErrorFrame) error {
	d.logger.Error().Str("error", frame.Message).Msg("Gate error")
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { f.Close() }, nil
}
