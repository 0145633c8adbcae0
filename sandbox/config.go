package sandbox

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wippyai/wasm-host/errors"
)

// ClockAccess selects which host clocks the guest observes.
type ClockAccess string

const (
	// ClockNone keeps deterministic fake clocks.
	ClockNone ClockAccess = "none"
	// ClockRealTime exposes the host wall clock.
	ClockRealTime ClockAccess = "realtime"
	// ClockMonotonic exposes the wall clock, the monotonic clock and real sleep.
	ClockMonotonic ClockAccess = "monotonic"
)

// DefaultOutputLimit bounds each captured stdio stream.
const DefaultOutputLimit = 1 << 20

// Config is the effect view granted to a guest. Every option defaults to
// denied.
type Config struct {
	// Clock selects the clocks the guest observes. Empty means ClockNone.
	Clock ClockAccess `json:"clock,omitempty" yaml:"clock" validate:"omitempty,oneof=none realtime monotonic" jsonschema:"enum=none,enum=realtime,enum=monotonic"`

	// PreopenedDirs are host directories mounted into the guest, written
	// "host" (mounted at the same path) or "host:/guest".
	PreopenedDirs []string `json:"preopened_dirs,omitempty" yaml:"preopened_dirs" validate:"dive,required"`

	// OutputLimit caps each captured stdio stream in bytes. Zero means
	// DefaultOutputLimit.
	OutputLimit int `json:"output_limit,omitempty" yaml:"output_limit" validate:"gte=0"`

	// InheritStdio connects the guest to the process stdin, stdout and
	// stderr. Otherwise stdin is empty and output is captured.
	InheritStdio bool `json:"inherit_stdio,omitempty" yaml:"inherit_stdio"`

	// EnvPassthrough copies the process environment into the guest.
	EnvPassthrough bool `json:"env_passthrough,omitempty" yaml:"env_passthrough"`

	// DisableEffects builds a context with no runtime effect bindings at
	// all; a guest importing WASI then fails to link.
	DisableEffects bool `json:"disable_effects,omitempty" yaml:"disable_effects"`
}

var validate = validator.New()

// Mount is a resolved preopened directory.
type Mount struct {
	Host  string
	Guest string
}

// Validate checks field constraints and that every preopened directory
// exists.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseContext, errors.KindInvalidInput, err, "config validation failed")
	}
	for _, m := range c.Mounts() {
		info, err := os.Stat(m.Host)
		if err != nil {
			return errors.Wrap(errors.PhaseContext, errors.KindInvalidInput, err, "preopened dir "+m.Host)
		}
		if !info.IsDir() {
			return errors.InvalidInput(errors.PhaseContext, fmt.Sprintf("preopened path %s is not a directory", m.Host))
		}
	}
	return nil
}

// Mounts parses PreopenedDirs.
func (c Config) Mounts() []Mount {
	mounts := make([]Mount, 0, len(c.PreopenedDirs))
	for _, dir := range c.PreopenedDirs {
		m := Mount{Host: dir, Guest: dir}
		if i := strings.LastIndex(dir, ":"); i > 0 && strings.HasPrefix(dir[i+1:], "/") {
			m.Host, m.Guest = dir[:i], dir[i+1:]
		}
		mounts = append(mounts, m)
	}
	return mounts
}

func (c Config) clock() ClockAccess {
	if c.Clock == "" {
		return ClockNone
	}
	return c.Clock
}

func (c Config) outputLimit() int {
	if c.OutputLimit == 0 {
		return DefaultOutputLimit
	}
	return c.OutputLimit
}
