// Package session implements the three session modes of spec.md §4.6-4.8:
// peer-to-peer play, local determinism testing, and spectator replication.
// It is the orchestration layer sitting above internal/protocol the same
// way the teacher's internal/server.Server sits above its per-connection
// reader/writer pair — except every method here is called cooperatively
// from the host's own tick (spec.md §5: no engine-internal background
// threads), so there is no accept loop and no goroutine-per-peer.
package session

import (
	"github.com/nullframe/rollback/internal/protocol"
	"github.com/nullframe/rollback/internal/timesync"
)

// Config carries every tunable named in spec.md §6.4, constructed via
// DefaultConfig and functional options, mirroring the teacher's
// ServerOption / With* pattern (internal/server/server.go).
type Config struct {
	MaxPredictionFrames int
	FrameDelay          int
	FPS                 int

	// DesyncInterval is the number of frames between piggybacked checksum
	// exchanges. 0 disables desync detection (spec.md DesyncDetection.interval).
	DesyncInterval int

	SpectatorMaxFramesBehind int
	SpectatorCatchupSpeed    int
	SpectatorBufferFrames    int

	// CheckDistance is the Synctest session's rewind-and-replay interval
	// (spec.md §4.8 check_distance). Must be <= MaxPredictionFrames so the
	// snapshot store still holds the frame being rewound to.
	CheckDistance int
}

// DefaultConfig returns the spec.md §6.4 defaults.
func DefaultConfig() Config {
	return Config{
		MaxPredictionFrames:      protocol.MaxPredictionFrames,
		FrameDelay:               protocol.FrameDelayDefault,
		FPS:                      60,
		DesyncInterval:           0,
		SpectatorMaxFramesBehind: 90,
		SpectatorCatchupSpeed:    2,
		SpectatorBufferFrames:    60,
		CheckDistance:            protocol.MaxPredictionFrames,
	}
}

// Option mutates a Config under construction.
type Option func(*Config)

func WithMaxPredictionFrames(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxPredictionFrames = n
		}
	}
}

func WithFrameDelay(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.FrameDelay = n
		}
	}
}

func WithFPS(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FPS = n
		}
	}
}

func WithDesyncInterval(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.DesyncInterval = n
		}
	}
}

func WithSpectatorCatchup(maxFramesBehind, catchupSpeed int) Option {
	return func(c *Config) {
		if maxFramesBehind > 0 {
			c.SpectatorMaxFramesBehind = maxFramesBehind
		}
		if catchupSpeed > 0 {
			c.SpectatorCatchupSpeed = catchupSpeed
		}
	}
}

func WithSpectatorBuffer(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SpectatorBufferFrames = n
		}
	}
}

func WithCheckDistance(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.CheckDistance = n
		}
	}
}

func buildConfig(opts []Option) Config {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// timeSyncFor returns a fresh TimeSync estimator; broken out as its own
// constructor so every session mode that wants one builds it identically.
func timeSyncFor() *timesync.Estimator { return timesync.New() }
