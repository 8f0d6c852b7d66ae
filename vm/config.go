package vm

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ---------------------------------------------------------------------------
// Runtime configuration
// ---------------------------------------------------------------------------

// Config tunes one interpreter instance and its heap. The zero value is not
// usable; start from DefaultConfig or LoadConfig.
type Config struct {
	// StackCapacity bounds the operand stack of each call frame. A push
	// past this depth fails with a stack overflow.
	StackCapacity int `toml:"stack_capacity"`

	// MaxFrameDepth bounds the number of simultaneously active call
	// frames. Recursion past this depth fails with a stack overflow.
	MaxFrameDepth int `toml:"max_frame_depth"`

	// HeapThreshold is the initial live-object count that triggers a
	// collection.
	HeapThreshold int `toml:"heap_threshold"`

	// HeapCeiling is the hard live-object limit. Allocation fails when
	// even a sweep cannot bring the live set below it.
	HeapCeiling int `toml:"heap_ceiling"`

	// Trace enables per-instruction debug logging.
	Trace bool `toml:"trace"`
}

// DefaultConfig returns the standard runtime tuning.
func DefaultConfig() Config {
	return Config{
		StackCapacity: 256,
		MaxFrameDepth: 1024,
		HeapThreshold: DefaultHeapThreshold,
		HeapCeiling:   DefaultHeapCeiling,
	}
}

// LoadConfig reads a TOML runtime configuration. Fields absent from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("vm: load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot honor.
func (c Config) Validate() error {
	if c.StackCapacity <= 0 {
		return fmt.Errorf("vm: config: stack_capacity must be positive, got %d", c.StackCapacity)
	}
	if c.MaxFrameDepth <= 0 {
		return fmt.Errorf("vm: config: max_frame_depth must be positive, got %d", c.MaxFrameDepth)
	}
	if c.HeapThreshold <= 0 {
		return fmt.Errorf("vm: config: heap_threshold must be positive, got %d", c.HeapThreshold)
	}
	if c.HeapCeiling < c.HeapThreshold {
		return fmt.Errorf("vm: config: heap_ceiling %d below heap_threshold %d", c.HeapCeiling, c.HeapThreshold)
	}
	return nil
}
