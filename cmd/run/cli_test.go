package main

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/canon"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/internal/guests"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, phrase := range []string{
		"--wasm",
		"--wit",
		"--func",
		"--arg",
		"--config",
		"--preopen",
		"--clock",
		"--pipelined",
		"--interactive",
		"--schema",
	} {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLISchema(t *testing.T) {
	output, err := executeCommand(newRootCmd(), "--schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, phrase := range []string{"engine", "sandbox", "preopened_dirs", "memory_limit_pages", "realtime"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("schema should contain %q", phrase)
		}
	}
}

func TestCLIRequiresWasm(t *testing.T) {
	if _, err := executeCommand(newRootCmd(), "--func", "x"); err == nil {
		t.Fatal("expected error without --wasm")
	}
}

func TestCLIRunConvert(t *testing.T) {
	path := writeFile(t, "convert.wasm", guests.ConvertComponent().Wasm)

	for _, mode := range []string{"single", "pipelined"} {
		t.Run(mode, func(t *testing.T) {
			args := []string{"--wasm", path, "--func", "convert-celsius-to-fahrenheit", "--arg", "23.4"}
			if mode == "pipelined" {
				args = append(args, "--pipelined")
			}
			output, err := executeCommand(newRootCmd(), args...)
			if err != nil {
				t.Fatalf("run: %v\n%s", err, output)
			}
			if !strings.HasPrefix(output, "74.1") {
				t.Errorf("output = %q, want 74.12", output)
			}
		})
	}
}

func TestCLIRunWithDescriptorFile(t *testing.T) {
	g := guests.Convert()
	wasm := writeFile(t, "convert.wasm", g.Wasm)
	witFile := writeFile(t, "convert.wit", []byte(g.WIT))

	output, err := executeCommand(newRootCmd(),
		"--wasm", wasm, "--wit", witFile,
		"-f", "convert-celsius-to-fahrenheit", "-a", "0")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(output) != "32" {
		t.Errorf("output = %q, want 32", output)
	}
}

func TestCLIList(t *testing.T) {
	path := writeFile(t, "convert.wasm", guests.ConvertComponent().Wasm)

	output, err := executeCommand(newRootCmd(), "--wasm", path, "--list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, phrase := range []string{
		"World: convert (component)",
		"example:convert/host",
		"multiply: func(a: f32, b: f32) -> f32",
		"convert-celsius-to-fahrenheit: func(x: f32) -> f32",
		"Resolution:",
		"example:convert/host#multiply -> host",
	} {
		if !strings.Contains(output, phrase) {
			t.Errorf("list output should contain %q\n%s", phrase, output)
		}
	}
}

func TestCLIListResolution(t *testing.T) {
	hello := guests.Hello()
	divide := guests.Divide()

	tests := []struct {
		name    string
		guest   guests.Guest
		flags   []string
		want    []string
		notWant []string
	}{
		{
			name:  "post-return export",
			guest: divide,
			want:  []string{"divide: func(a: s32, b: s32) -> result<s32, u8> [post-return]"},
		},
		{
			name:    "runtime effects",
			guest:   hello,
			want:    []string{"wasi_snapshot_preview1#fd_write -> runtime effects"},
			notWant: []string{"[post-return]", "Unresolved"},
		},
		{
			name:    "effects disabled",
			guest:   hello,
			flags:   []string{"--no-effects"},
			want:    []string{"Unresolved:", "wasi_snapshot_preview1#fd_write"},
			notWant: []string{"Resolution:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wasm := writeFile(t, tt.guest.Name+".wasm", tt.guest.Wasm)
			witFile := writeFile(t, tt.guest.Name+".wit", []byte(tt.guest.WIT))

			args := append([]string{"--wasm", wasm, "--wit", witFile, "--list"}, tt.flags...)
			output, err := executeCommand(newRootCmd(), args...)
			if err != nil {
				t.Fatalf("list: %v\n%s", err, output)
			}
			for _, phrase := range tt.want {
				if !strings.Contains(output, phrase) {
					t.Errorf("list output should contain %q\n%s", phrase, output)
				}
			}
			for _, phrase := range tt.notWant {
				if strings.Contains(output, phrase) {
					t.Errorf("list output should not contain %q\n%s", phrase, output)
				}
			}
		})
	}
}

func TestCLINoFuncListsExports(t *testing.T) {
	path := writeFile(t, "convert.wasm", guests.ConvertComponent().Wasm)

	output, err := executeCommand(newRootCmd(), "--wasm", path)
	if err == nil {
		t.Fatal("expected error without --func")
	}
	if !strings.Contains(output, "convert-celsius-to-fahrenheit") {
		t.Errorf("output should list the exports:\n%s", output)
	}
}

func TestCLIBadArgument(t *testing.T) {
	path := writeFile(t, "convert.wasm", guests.ConvertComponent().Wasm)

	tests := []struct {
		name string
		args []string
	}{
		{"not a number", []string{"--arg", "warm"}},
		{"too many", []string{"--arg", "1", "--arg", "2"}},
		{"missing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--wasm", path, "--func", "convert-celsius-to-fahrenheit"}, tt.args...)
			if _, err := executeCommand(newRootCmd(), args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCLIUnknownExport(t *testing.T) {
	path := writeFile(t, "convert.wasm", guests.ConvertComponent().Wasm)

	_, err := executeCommand(newRootCmd(), "--wasm", path, "--func", "nope")
	if errors.KindOf(err) != errors.KindNotFound {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCLICapturesOutput(t *testing.T) {
	g := guests.Hello()
	wasm := writeFile(t, "hello.wasm", g.Wasm)
	witFile := writeFile(t, "hello.wit", []byte(g.WIT))

	output, err := executeCommand(newRootCmd(), "--wasm", wasm, "--wit", witFile, "--func", "greet")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if output != guests.HelloOutput {
		t.Errorf("output = %q, want %q", output, guests.HelloOutput)
	}
}

func TestCLIPolicyDisablesEffects(t *testing.T) {
	g := guests.Hello()
	wasm := writeFile(t, "hello.wasm", g.Wasm)
	witFile := writeFile(t, "hello.wit", []byte(g.WIT))
	policy := writeFile(t, "policy.yaml", []byte("sandbox:\n  disable_effects: true\n"))

	_, err := executeCommand(newRootCmd(), "--wasm", wasm, "--wit", witFile, "--func", "greet", "--config", policy)
	if !stderrors.Is(err, errors.ErrUnsatisfiedImport) {
		t.Fatalf("err = %v, want unsatisfied import", err)
	}
}

func TestLoadPolicy(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p, err := loadPolicy("")
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(defaultPolicy(), p); diff != "" {
			t.Errorf("policy mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, "policy.yaml", []byte(`
engine:
  strict: true
  memory_limit_pages: 256
sandbox:
  clock: realtime
  preopened_dirs: ["`+dir+`"]
`))
		p, err := loadPolicy(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Validate(); err != nil {
			t.Fatal(err)
		}
		want := defaultPolicy()
		want.Engine.Strict = true
		want.Engine.MemoryLimitPages = 256
		want.Sandbox.Clock = "realtime"
		want.Sandbox.PreopenedDirs = []string{dir}
		if diff := cmp.Diff(want, p); diff != "" {
			t.Errorf("policy mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		path := writeFile(t, "policy.yaml", []byte("sandbox:\n  network: true\n"))
		if _, err := loadPolicy(path); err == nil {
			t.Fatal("expected error for unknown key")
		}
	})

	t.Run("invalid clock", func(t *testing.T) {
		path := writeFile(t, "policy.yaml", []byte("sandbox:\n  clock: sundial\n"))
		p, err := loadPolicy(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.Validate(); errors.KindOf(err) != errors.KindInvalidInput {
			t.Fatalf("Validate = %v, want invalid input", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := loadPolicy(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestConvertArg(t *testing.T) {
	tests := []struct {
		typ     wit.Type
		want    any
		name    string
		value   string
		wantErr bool
	}{
		{name: "bool", typ: wit.Bool{}, value: "true", want: true},
		{name: "u8", typ: wit.U8{}, value: "255", want: uint8(255)},
		{name: "u8 overflow", typ: wit.U8{}, value: "256", wantErr: true},
		{name: "u16 hex", typ: wit.U16{}, value: "0x10", want: uint16(16)},
		{name: "u32", typ: wit.U32{}, value: "7", want: uint32(7)},
		{name: "u64", typ: wit.U64{}, value: "1", want: uint64(1)},
		{name: "s8", typ: wit.S8{}, value: "-128", want: int8(-128)},
		{name: "s16", typ: wit.S16{}, value: "-2", want: int16(-2)},
		{name: "s32", typ: wit.S32{}, value: "-3", want: int32(-3)},
		{name: "s64", typ: wit.S64{}, value: "-4", want: int64(-4)},
		{name: "f32", typ: wit.F32{}, value: "1.5", want: float32(1.5)},
		{name: "f64", typ: wit.F64{}, value: "2.25", want: 2.25},
		{name: "char", typ: wit.Char{}, value: "é", want: 'é'},
		{name: "char too long", typ: wit.Char{}, value: "ab", wantErr: true},
		{name: "option none", typ: descriptor.Option(wit.U32{}), value: "none", want: nil},
		{name: "option some", typ: descriptor.Option(wit.U32{}), value: "3", want: uint32(3)},
		{name: "result ok", typ: descriptor.Result(wit.S32{}, wit.U8{}), value: "ok:-1", want: canon.Ok(int32(-1))},
		{name: "result err", typ: descriptor.Result(wit.S32{}, wit.U8{}), value: "err:7", want: canon.Err(uint8(7))},
		{name: "result empty ok", typ: descriptor.Result(nil, wit.U8{}), value: "ok", want: canon.Ok(nil)},
		{name: "result bad tag", typ: descriptor.Result(wit.S32{}, nil), value: "maybe:1", wantErr: true},
		{name: "not a number", typ: wit.F32{}, value: "warm", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertArg(tt.value, tt.typ)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("convertArg(%q) = %v, want error", tt.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("convertArg(%q): %v", tt.value, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("convertArg(%q) mismatch (-want +got):\n%s", tt.value, diff)
			}
			if err := canon.Check(nil, tt.typ, got); err != nil {
				t.Errorf("converted value does not check: %v", err)
			}
		})
	}
}
