package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML profile from path. Keys absent from the file keep their
// Default values.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML profile on top of Default. Unknown keys are rejected
// so a misspelt option cannot silently fall back to its default.
func Parse(data []byte) (Profile, error) {
	return ParseOnto(Default(), data)
}

// ParseOnto decodes a YAML profile on top of base.
func ParseOnto(base Profile, data []byte) (Profile, error) {
	p := base.Clone()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("decode yaml: %w", err)
	}
	p.FluxMode = FluxMode(strings.ToLower(string(p.FluxMode)))
	p.Extrusion = ExtrusionMode(strings.ToLower(string(p.Extrusion)))
	return p, nil
}

// Marshal encodes p as YAML.
func Marshal(p Profile) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("profile: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("profile: encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}
