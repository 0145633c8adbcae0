package engine

import (
	"encoding/hex"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-host/canon"
	"github.com/wippyai/wasm-host/descriptor"
)

// CoreImport is a function import of the core module.
type CoreImport struct {
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Artifact is a validated guest: core module bytes plus the descriptor
// they were checked against. Artifacts are immutable and shared by every
// instance created from them.
type Artifact struct {
	world       *descriptor.World
	compiled    wazero.CompiledModule
	exports     map[string]*canon.CoreSignature
	coreExports map[string]bool
	core        []byte
	imports     []CoreImport
	digest      [32]byte
	component   bool
	memory      bool
}

// World returns the parsed interface descriptor.
func (a *Artifact) World() *descriptor.World { return a.world }

// Core returns the core module bytes. For components this is the embedded
// module, not the original input.
func (a *Artifact) Core() []byte { return a.core }

// Digest returns the hex SHA-256 the artifact is cached under.
func (a *Artifact) Digest() string { return hex.EncodeToString(a.digest[:]) }

// Component reports whether the artifact was loaded from a component binary.
func (a *Artifact) Component() bool { return a.component }

// ExportsMemory reports whether the guest exports its linear memory as
// "memory".
func (a *Artifact) ExportsMemory() bool { return a.memory }

// Imports returns the core function imports in module order.
func (a *Artifact) Imports() []CoreImport {
	out := make([]CoreImport, len(a.imports))
	copy(out, a.imports)
	return out
}

// Export returns a declared export and its lifted core signature.
func (a *Artifact) Export(name string) (*descriptor.Export, *canon.CoreSignature, bool) {
	e := a.world.Export(name)
	if e == nil {
		return nil, nil, false
	}
	return e, a.exports[name], true
}

// HasCoreExport reports whether the core module exports a function named
// name, declared or not.
func (a *Artifact) HasCoreExport(name string) bool { return a.coreExports[name] }
