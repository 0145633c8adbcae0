package engine

import (
	"github.com/go-playground/validator/v10"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/errors"
)

var validate = validator.New()

// Config holds configuration for engine creation
type Config struct {
	// CacheDir persists compiled code across processes. Empty keeps the
	// cache in memory.
	CacheDir string `yaml:"cache_dir" json:"cache_dir,omitempty"`

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" json:"memory_limit_pages,omitempty" validate:"lte=65536"`

	// ComponentModel accepts component binaries in addition to core modules.
	ComponentModel bool `yaml:"component_model" json:"component_model"`

	// DebugInfo retains DWARF and name sections so traps carry guest
	// source locations.
	DebugInfo bool `yaml:"debug_info" json:"debug_info"`

	// Strict restricts guests to WebAssembly 1.0 features.
	Strict bool `yaml:"strict" json:"strict"`

	// CloseOnContextDone lets a cancelled or expired context interrupt a
	// running guest. Off by default: a call that never returns blocks.
	CloseOnContextDone bool `yaml:"close_on_context_done" json:"close_on_context_done"`
}

// DefaultConfig enables the component model and debug metadata.
func DefaultConfig() *Config {
	return &Config{
		ComponentModel: true,
		DebugInfo:      true,
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "invalid engine config")
	}
	return nil
}

func (c *Config) features() api.CoreFeatures {
	if c.Strict {
		return api.CoreFeaturesV1
	}
	return api.CoreFeaturesV2
}

// runtimeConfig builds the wazero configuration every runtime created from
// this engine shares. Runtimes must agree on it to share compiled code.
func (c *Config) runtimeConfig(cache wazero.CompilationCache) wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig().
		WithCoreFeatures(c.features()).
		WithDebugInfoEnabled(c.DebugInfo).
		WithCustomSections(true).
		WithCloseOnContextDone(c.CloseOnContextDone).
		WithCompilationCache(cache)
	if c.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	return rc
}
