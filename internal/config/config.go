// Package config handles the YAML configuration shared by the host and
// controller binaries. Every value has a default; the file overrides the
// defaults and command-line flags override the file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/junsooki/airdesk/internal/input"
	"github.com/junsooki/airdesk/internal/logging"
	"github.com/junsooki/airdesk/internal/stream"
	"github.com/junsooki/airdesk/internal/transfer"
	"github.com/junsooki/airdesk/internal/wire"
)

// DefaultStreamPort is where the UDP receiver listens by default.
const DefaultStreamPort = 7878

// Config holds all runtime configuration.
type Config struct {
	Signaling SignalingConfig `yaml:"signaling"`
	Stream    StreamConfig    `yaml:"stream"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Input     InputConfig     `yaml:"input"`
	Log       LogConfig       `yaml:"log"`
}

// SignalingConfig locates the rendezvous server.
type SignalingConfig struct {
	URL        string   `yaml:"url"`
	ID         string   `yaml:"id"`
	// ICEServers left unset uses public STUN; an explicit empty list
	// disables STUN for LAN-only use.
	ICEServers []string `yaml:"ice_servers"`
}

// StreamConfig tunes the frame sender and receiver.
type StreamConfig struct {
	Variant           string   `yaml:"variant"`
	FPS               int      `yaml:"fps"`
	Quality           int      `yaml:"quality"`
	MaxWidth          int      `yaml:"max_width"`
	RecoveryThreshold int      `yaml:"recovery_threshold"`
	Port              int      `yaml:"port"`
	PollTimeout       Duration `yaml:"poll_timeout"`
	MinEmitInterval   Duration `yaml:"min_emit_interval"`
	AcceptLegacy      bool     `yaml:"accept_legacy"`
	LogEvery          uint64   `yaml:"log_every"`
}

// TransferConfig tunes file transfer.
type TransferConfig struct {
	Dir         string   `yaml:"dir"`
	Port        int      `yaml:"port"`
	ChunkSize   int      `yaml:"chunk_size"`
	Timeout     Duration `yaml:"timeout"`
	Compression string   `yaml:"compression"`
}

// InputConfig tunes input replay.
type InputConfig struct {
	Enabled bool     `yaml:"enabled"`
	Delay   Duration `yaml:"delay"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "30ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "100ms" or "1m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration back in string form.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// Default returns the configuration used when no file is given.
func Default() *Config {
	snd := stream.DefaultSenderConfig()
	rcv := stream.DefaultReceiverConfig()
	return &Config{
		Signaling: SignalingConfig{URL: "ws://localhost:8080"},
		Stream: StreamConfig{
			Variant:           snd.Variant.String(),
			FPS:               30,
			Quality:           70,
			MaxWidth:          snd.MaxWidth,
			RecoveryThreshold: snd.RecoveryThreshold,
			Port:              DefaultStreamPort,
			PollTimeout:       Duration{rcv.PollTimeout},
			MinEmitInterval:   Duration{rcv.MinEmitInterval},
			LogEvery:          rcv.LogEvery,
		},
		Transfer: TransferConfig{
			Dir:       "Downloads",
			Port:      transfer.DefaultPort,
			ChunkSize: transfer.DefaultChunkSize,
			Timeout:   Duration{transfer.DefaultTimeout},
		},
		Input: InputConfig{Enabled: true, Delay: Duration{input.DefaultDelay}},
		Log:   LogConfig{Level: "info", Format: "console"},
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := wire.ParseVariant(c.Stream.Variant); err != nil {
		errs = append(errs, fmt.Errorf("stream.variant: %w", err))
	}
	if c.Stream.FPS < 1 || c.Stream.FPS > stream.MaxFPS {
		errs = append(errs, fmt.Errorf("stream.fps: %d not in 1..%d", c.Stream.FPS, stream.MaxFPS))
	}
	if c.Stream.Quality < 1 || c.Stream.Quality > 100 {
		errs = append(errs, fmt.Errorf("stream.quality: %d not in 1..100", c.Stream.Quality))
	}
	if c.Stream.MaxWidth < 0 {
		errs = append(errs, fmt.Errorf("stream.max_width: negative"))
	}
	if c.Stream.Port < 0 || c.Stream.Port > 65535 {
		errs = append(errs, fmt.Errorf("stream.port: %d out of range", c.Stream.Port))
	}
	if c.Transfer.Port < 0 || c.Transfer.Port > 65535 {
		errs = append(errs, fmt.Errorf("transfer.port: %d out of range", c.Transfer.Port))
	}
	if c.Transfer.ChunkSize <= 0 || c.Transfer.ChunkSize > transfer.MaxChunkSize {
		errs = append(errs, fmt.Errorf("transfer.chunk_size: %d not in 1..%d", c.Transfer.ChunkSize, transfer.MaxChunkSize))
	}
	if _, err := transfer.ParseCompression(c.Transfer.Compression); err != nil {
		errs = append(errs, fmt.Errorf("transfer.compression: %w", err))
	}
	if _, err := logging.New(logging.Options{Level: c.Log.Level, Format: c.Log.Format}); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	return errors.Join(errs...)
}

// EnsureID fills Signaling.ID with "<role>-<random>" when it is empty.
func (c *Config) EnsureID(role string) string {
	if c.Signaling.ID == "" {
		c.Signaling.ID = fmt.Sprintf("%s-%s", role, strings.SplitN(uuid.NewString(), "-", 2)[0])
	}
	return c.Signaling.ID
}

// SenderConfig converts the stream section for stream.NewSender.
func (c *Config) SenderConfig() (stream.SenderConfig, error) {
	v, err := wire.ParseVariant(c.Stream.Variant)
	if err != nil {
		return stream.SenderConfig{}, err
	}
	return stream.SenderConfig{
		Variant:           v,
		MaxWidth:          c.Stream.MaxWidth,
		RecoveryThreshold: c.Stream.RecoveryThreshold,
		LogEvery:          c.Stream.LogEvery,
	}, nil
}

// ReceiverConfig converts the stream section for stream.NewReceiver.
func (c *Config) ReceiverConfig() stream.ReceiverConfig {
	return stream.ReceiverConfig{
		PollTimeout:     c.Stream.PollTimeout.Duration,
		MinEmitInterval: c.Stream.MinEmitInterval.Duration,
		AcceptLegacy:    c.Stream.AcceptLegacy,
		LogEvery:        c.Stream.LogEvery,
	}
}

// ClientConfig converts the transfer section for transfer.NewClient.
func (c *Config) ClientConfig() (transfer.ClientConfig, error) {
	comp, err := transfer.ParseCompression(c.Transfer.Compression)
	if err != nil {
		return transfer.ClientConfig{}, err
	}
	return transfer.ClientConfig{
		ChunkSize:   c.Transfer.ChunkSize,
		Timeout:     c.Transfer.Timeout.Duration,
		Compression: comp,
	}, nil
}

// ServerConfig converts the transfer section for transfer.NewServer.
func (c *Config) ServerConfig() transfer.ServerConfig {
	return transfer.ServerConfig{
		Addr:    fmt.Sprintf(":%d", c.Transfer.Port),
		Timeout: c.Transfer.Timeout.Duration,
	}
}

// LogOptions converts the log section for logging.New.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}
