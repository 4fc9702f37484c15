package tasktree

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultQueueCap     = 16
	defaultMaxDepthWarn = 32
	defaultMaxChildWarn = 1000
	defaultTPS          = 60
	defaultWidth        = 640
	defaultHeight       = 480
)

// Config configures a Scheduler. The zero value is usable.
type Config struct {
	// Logger receives diagnostics. Nil means zap.NewNop().
	Logger *zap.Logger `yaml:"-"`

	// Debug enables per-pump timing logs, tree shape warnings and the
	// single-goroutine check in Pump.
	Debug bool `yaml:"debug"`

	// ReserveCap bounds pending reservations; zero means unbounded.
	ReserveCap int `yaml:"reserve_cap"`

	// QueueCap is the initial capacity of each message queue.
	QueueCap int `yaml:"queue_cap"`

	// MaxDepthWarn and MaxChildWarn are the debug thresholds for tree depth
	// and children per task.
	MaxDepthWarn int `yaml:"max_depth_warn"`
	MaxChildWarn int `yaml:"max_child_warn"`
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.QueueCap <= 0 {
		c.QueueCap = defaultQueueCap
	}
	if c.MaxDepthWarn <= 0 {
		c.MaxDepthWarn = defaultMaxDepthWarn
	}
	if c.MaxChildWarn <= 0 {
		c.MaxChildWarn = defaultMaxChildWarn
	}
	return c
}

// DeltaMode selects the unit of the delta Game passes to Pump.
type DeltaMode string

const (
	// DeltaFrames passes elapsed time in frames at the configured TPS,
	// clamped to [1, 4].
	DeltaFrames DeltaMode = "frames"
	// DeltaSeconds passes the same clamped value converted to seconds.
	DeltaSeconds DeltaMode = "seconds"
)

// RunConfig configures Game and Run.
type RunConfig struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`

	// TPS is the number of Pump calls per second.
	TPS int `yaml:"tps"`

	Delta DeltaMode `yaml:"delta"`

	// ShowTree draws the scheduler tree over the screen.
	ShowTree bool `yaml:"show_tree"`

	// ShowFPS draws the measured FPS and TPS in the bottom-left corner.
	ShowFPS bool `yaml:"show_fps"`

	// ExitWhenEmpty ends the game loop once the scheduler has no tasks.
	ExitWhenEmpty bool `yaml:"exit_when_empty"`

	Scheduler Config `yaml:"scheduler"`
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Width <= 0 {
		c.Width = defaultWidth
	}
	if c.Height <= 0 {
		c.Height = defaultHeight
	}
	if c.TPS <= 0 {
		c.TPS = defaultTPS
	}
	if c.Delta == "" {
		c.Delta = DeltaFrames
	}
	return c
}

// LoadRunConfig parses a YAML run configuration and fills in defaults.
func LoadRunConfig(data []byte) (RunConfig, error) {
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("parse run config: %w", err)
	}
	switch cfg.Delta {
	case "", DeltaFrames, DeltaSeconds:
	default:
		return RunConfig{}, fmt.Errorf("parse run config: unknown delta mode %q", cfg.Delta)
	}
	return cfg.withDefaults(), nil
}
