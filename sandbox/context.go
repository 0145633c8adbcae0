package sandbox

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/resource"
)

// EffectKind is the class of runtime effect bindings a context expects.
type EffectKind int

const (
	EffectsNone EffectKind = iota
	EffectsWASIPreview1
)

func (k EffectKind) String() string {
	switch k {
	case EffectsNone:
		return "none"
	case EffectsWASIPreview1:
		return "wasi_snapshot_preview1"
	}
	return "unknown"
}

// Context is the per-instance execution state: an effect view fixed at
// construction and a resource table.
//
// A Context backs at most one instance. All calls that reach its resource
// table must hold the context through Enter.
type Context struct {
	resources *resource.Table
	stdout    *capture
	stderr    *capture
	owner     string
	cfg       Config
	mu        sync.Mutex
	stateMu   sync.Mutex
	closed    bool
}

// New validates cfg and builds a context with an empty resource table.
func New(cfg Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.PreopenedDirs = append([]string(nil), cfg.PreopenedDirs...)

	limit := cfg.outputLimit()
	return &Context{
		cfg:       cfg,
		resources: resource.New(),
		stdout:    newCapture(limit),
		stderr:    newCapture(limit),
	}, nil
}

// Config returns a copy of the effect configuration.
func (c *Context) Config() Config {
	cfg := c.cfg
	cfg.PreopenedDirs = append([]string(nil), c.cfg.PreopenedDirs...)
	return cfg
}

// Kind reports the effect bindings this context expects the linker to wire.
func (c *Context) Kind() EffectKind {
	if c.cfg.DisableEffects {
		return EffectsNone
	}
	return EffectsWASIPreview1
}

// Resources returns the context's resource table.
func (c *Context) Resources() *resource.Table {
	return c.resources
}

// Stdout returns captured guest output. It is empty with InheritStdio.
func (c *Context) Stdout() []byte { return c.stdout.Bytes() }

// Stderr returns captured guest error output.
func (c *Context) Stderr() []byte { return c.stderr.Bytes() }

// OutputTruncated reports whether captured output hit the limit.
func (c *Context) OutputTruncated() bool {
	return c.stdout.Truncated() || c.stderr.Truncated()
}

// Bind claims the context for one instance.
func (c *Context) Bind(owner string) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.closed {
		return errors.Closed(errors.PhaseContext, "execution context")
	}
	if c.owner != "" {
		return errors.New(errors.PhaseContext, errors.KindInvalidInput).
			Name(owner).
			Detail("execution context already bound to %s", c.owner).
			Build()
	}
	c.owner = owner
	return nil
}

// Unbind releases a claim made by owner. It is a no-op when owner does not
// hold the context.
func (c *Context) Unbind(owner string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.owner == owner {
		c.owner = ""
	}
}

// Owner returns the name of the bound instance, or "".
func (c *Context) Owner() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.owner
}

// Enter takes exclusive access for the duration of a call. The returned
// function releases it.
func (c *Context) Enter() (func(), error) {
	c.mu.Lock()
	c.stateMu.Lock()
	closed := c.closed
	c.stateMu.Unlock()
	if closed {
		c.mu.Unlock()
		return nil, errors.Closed(errors.PhaseCall, "execution context")
	}
	return c.mu.Unlock, nil
}

// LeakReport lists resources that were still live at teardown.
type LeakReport struct {
	Leaked []resource.Handle
	Stats  resource.Stats
}

// Count returns the number of leaked handles.
func (r LeakReport) Count() int { return len(r.Leaked) }

// Close drops leftover resources and reports them. It waits for an
// in-flight call to finish. Closing twice returns an empty report.
func (c *Context) Close() LeakReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return LeakReport{}
	}
	c.closed = true
	c.stateMu.Unlock()

	leaked := c.resources.Close()
	return LeakReport{Leaked: leaked, Stats: c.resources.Stats()}
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.closed
}

// ModuleConfig renders the effect view as a wazero module configuration.
func (c *Context) ModuleConfig(name string) wazero.ModuleConfig {
	mc := wazero.NewModuleConfig().WithName(name)

	if c.cfg.InheritStdio {
		mc = mc.WithStdin(os.Stdin).WithStdout(os.Stdout).WithStderr(os.Stderr)
	} else {
		mc = mc.WithStdin(strings.NewReader("")).WithStdout(io.Writer(c.stdout)).WithStderr(io.Writer(c.stderr))
	}

	if c.cfg.EnvPassthrough {
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				continue
			}
			mc = mc.WithEnv(k, v)
		}
	}

	if mounts := c.cfg.Mounts(); len(mounts) > 0 {
		fsc := wazero.NewFSConfig()
		for _, m := range mounts {
			fsc = fsc.WithDirMount(m.Host, m.Guest)
		}
		mc = mc.WithFSConfig(fsc)
	}

	switch c.cfg.clock() {
	case ClockRealTime:
		mc = mc.WithSysWalltime()
	case ClockMonotonic:
		mc = mc.WithSysWalltime().WithSysNanotime().WithSysNanosleep()
	}

	return mc
}
