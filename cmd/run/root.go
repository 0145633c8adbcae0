package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-host/bootstrap"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/sandbox"
)

type options struct {
	wasm        string
	wit         string
	fn          string
	config      string
	clock       string
	cacheDir    string
	args        []string
	preopens    []string
	timeout     time.Duration
	outputLimit int
	env         bool
	inherit     bool
	noEffects   bool
	strict      bool
	pipelined   bool
	interactive bool
	list        bool
	schema      bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "run --wasm <file> [--func name] [--arg value]...",
		Short: "Run an exported operation of a WebAssembly guest",
		Long: `run - load a guest module or component, link it against host
capabilities and call one of its exports.

The guest gets no clocks, no environment and no filesystem unless a flag
or the --config policy grants them. Guest output is captured and printed
after the call. The built-in "host" interface provides multiply(f32, f32).`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.wasm, "wasm", "", "Path to the guest module or component")
	f.StringVar(&opts.wit, "wit", "", "Path to the WIT descriptor (default: embedded in the artifact)")
	f.StringVarP(&opts.fn, "func", "f", "", "Export to call")
	f.StringArrayVarP(&opts.args, "arg", "a", nil, "Argument value, in declaration order (repeatable)")
	f.StringVarP(&opts.config, "config", "c", "", "YAML policy file")
	f.StringSliceVar(&opts.preopens, "preopen", nil, "Preopen a host directory, host or host:/guest (repeatable)")
	f.StringVar(&opts.clock, "clock", "", "Host clocks the guest may read: none, realtime, monotonic")
	f.BoolVar(&opts.env, "env", false, "Pass the process environment to the guest")
	f.BoolVar(&opts.inherit, "inherit-stdio", false, "Connect the guest to the process stdio instead of capturing it")
	f.IntVar(&opts.outputLimit, "output-limit", 0, "Cap each captured stream in bytes")
	f.BoolVar(&opts.noEffects, "no-effects", false, "Link without any runtime effect bindings")
	f.StringVar(&opts.cacheDir, "cache-dir", "", "Persist compiled code in this directory")
	f.BoolVar(&opts.strict, "strict", false, "Restrict guests to WebAssembly 1.0 features")
	f.DurationVar(&opts.timeout, "timeout", 0, "Interrupt the guest after this long")
	f.BoolVar(&opts.pipelined, "pipelined", false, "Load and execute on separate goroutines")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "Interactive mode with TUI")
	f.BoolVarP(&opts.list, "list", "l", false, "List the guest's imports and exports and exit")
	f.BoolVar(&opts.schema, "schema", false, "Print the JSON schema of the --config policy and exit")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	return cmd
}

func (o *options) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	if o.schema {
		schema, err := policySchema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(schema))
		return err
	}

	if o.wasm == "" {
		return errors.New("--wasm is required")
	}

	policy, err := loadPolicy(o.config)
	if err != nil {
		return err
	}
	o.apply(cmd, policy)
	if err := policy.Validate(); err != nil {
		return err
	}

	log := zap.NewNop()
	if o.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		engine.SetLogger(log)
		linker.SetLogger(log)
	}

	p, err := o.pipeline(cmd, policy, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	switch {
	case o.interactive:
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("interactive mode needs a terminal")
		}
		return runInteractive(ctx, p, o.wasm)
	case o.list:
		return list(ctx, p, out)
	case o.fn == "":
		if err := list(ctx, p, out); err != nil {
			return err
		}
		return errors.New("no export selected, use --func")
	}

	result, err := bootstrap.Run(ctx, p)
	if err != nil {
		return err
	}
	if result != nil {
		_, err = fmt.Fprintf(out, "%v\n", result)
	}
	return err
}

// apply layers explicitly set flags over the policy.
func (o *options) apply(cmd *cobra.Command, p *Policy) {
	f := cmd.Flags()
	if f.Changed("preopen") {
		p.Sandbox.PreopenedDirs = append(p.Sandbox.PreopenedDirs, o.preopens...)
	}
	if f.Changed("clock") {
		p.Sandbox.Clock = sandbox.ClockAccess(o.clock)
	}
	if f.Changed("env") {
		p.Sandbox.EnvPassthrough = o.env
	}
	if f.Changed("inherit-stdio") {
		p.Sandbox.InheritStdio = o.inherit
	}
	if f.Changed("output-limit") {
		p.Sandbox.OutputLimit = o.outputLimit
	}
	if f.Changed("no-effects") {
		p.Sandbox.DisableEffects = o.noEffects
	}
	if f.Changed("cache-dir") {
		p.Engine.CacheDir = o.cacheDir
	}
	if f.Changed("strict") {
		p.Engine.Strict = o.strict
	}
	if o.timeout > 0 {
		p.Engine.CloseOnContextDone = true
	}
}

func (o *options) pipeline(cmd *cobra.Command, policy *Policy, log *zap.Logger) (bootstrap.Pipeline, error) {
	p := bootstrap.Pipeline{
		Engine:         &policy.Engine,
		Logger:         log,
		Source:         bootstrap.Source{Path: o.wasm},
		Operation:      o.fn,
		Bindings:       builtins(),
		Effects:        policy.Sandbox,
		RuntimeEffects: !policy.Sandbox.DisableEffects,
		Stdout:         cmd.OutOrStdout(),
		Stderr:         cmd.ErrOrStderr(),
	}
	if o.pipelined {
		p.Mode = bootstrap.ModePipelined
	}

	if o.wit != "" {
		src, err := os.ReadFile(o.wit)
		if err != nil {
			return p, fmt.Errorf("read descriptor: %w", err)
		}
		p.Source.WIT = string(src)
	}

	values := o.args
	p.ArgsFor = func(fn *descriptor.Func) ([]any, error) {
		return convertArgs(fn, values)
	}
	return p, nil
}

// link registers the pipeline's bindings on a fresh linker for b.
func link(b *bootstrap.Bundle, p bootstrap.Pipeline) (*linker.Linker, error) {
	l := linker.New(b.Engine)
	for _, nb := range p.Bindings {
		if err := l.Register(nb.Name, nb.Binding); err != nil {
			return nil, err
		}
	}
	if p.RuntimeEffects {
		if err := l.RegisterRuntimeEffects(b.Context.Kind()); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// list prints the world the artifact declares and how each import would
// be resolved.
func list(ctx context.Context, p bootstrap.Pipeline, out io.Writer) error {
	b, err := bootstrap.Prepare(ctx, p)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	if p.Logger != nil {
		p.Logger.Debug("artifact ready", zap.Int("cached_artifacts", b.Engine.CachedArtifacts()))
	}

	world := b.Artifact.World()
	kind := "module"
	if b.Artifact.Component() {
		kind = "component"
	}
	fmt.Fprintf(out, "World: %s (%s)\n", world.Name, kind)
	if world.Package != "" {
		fmt.Fprintf(out, "Package: %s\n", world.Package)
	}

	if len(world.Imports) > 0 {
		fmt.Fprintln(out, "\nImports:")
		for _, iface := range world.Imports {
			fmt.Fprintf(out, "  %s\n", iface.Module)
			for _, fn := range iface.Funcs {
				fmt.Fprintf(out, "    %s\n", fn)
			}
		}
	}

	fmt.Fprintln(out, "\nExports:")
	for _, e := range world.Exports {
		line := strings.TrimSuffix(e.Name, e.Func.Name) + e.Func.String()
		if b.Artifact.HasCoreExport("cabi_post_" + e.Name) {
			line += " [post-return]"
		}
		fmt.Fprintf(out, "  %s\n", line)
	}

	l, err := link(b, p)
	if err != nil {
		return err
	}
	plan, err := l.Plan(b.Artifact)
	if err != nil {
		fmt.Fprintf(out, "\nUnresolved: %v\n", err)
		return nil
	}
	if entries := plan.Entries(); len(entries) > 0 {
		fmt.Fprintln(out, "\nResolution:")
		for _, r := range entries {
			target := r.Binding
			if r.Effects {
				target = "runtime effects"
			}
			fmt.Fprintf(out, "  %s -> %s\n", r.Path(), target)
		}
	}
	return nil
}
