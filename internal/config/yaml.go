package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Decode parses a config file body. The format follows the extension of
// path: YAML for .yaml/.yml, JSON otherwise. Both go through the same strict
// JSON decoder, so an unknown key is an error in either format.
func Decode(path string, data []byte) (*Config, error) {
	if isYAML(path) {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		jb, err := json.Marshal(stringKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		data = jb
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("trailing data after config object")
		}
		return nil, err
	}
	return &cfg, nil
}

// Encode renders cfg for path: YAML for .yaml/.yml, indented JSON otherwise.
// YAML keys follow the json tags.
func Encode(path string, cfg *Config) ([]byte, error) {
	jb, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	if !isYAML(path) {
		return append(jb, '\n'), nil
	}
	var doc map[string]any
	if err := json.Unmarshal(jb, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// stringKeys rewrites map[any]any nodes so the tree can be JSON-marshaled.
func stringKeys(node any) any {
	switch n := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range n {
			n[k] = stringKeys(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = stringKeys(v)
		}
		return n
	}
	return node
}
