package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/sandbox"
)

// Policy is the YAML file accepted by --config. Flags given on the command
// line override it.
type Policy struct {
	Engine  engine.Config  `yaml:"engine" json:"engine" jsonschema:"description=Engine settings shared by every instance"`
	Sandbox sandbox.Config `yaml:"sandbox" json:"sandbox" jsonschema:"description=Effects granted to the guest"`
}

func defaultPolicy() *Policy {
	return &Policy{Engine: *engine.DefaultConfig()}
}

// loadPolicy reads a policy file over the defaults. Unknown keys are
// rejected.
func loadPolicy(path string) (*Policy, error) {
	p := defaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	if err := decodePolicy(bytes.NewReader(data), p); err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

func decodePolicy(r io.Reader, p *Policy) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Validate checks both halves of the policy.
func (p *Policy) Validate() error {
	if err := p.Engine.Validate(); err != nil {
		return err
	}
	return p.Sandbox.Validate()
}

// policySchema renders the JSON schema of Policy.
func policySchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Policy{})

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return out, nil
}
