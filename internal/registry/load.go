package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Load reads composite commands from path. Files ending in .yaml or .yml are
// parsed as YAML; anything else as JSON with comments and trailing commas
// allowed. Command and step order follow the file.
//
// The expected shape is
//
//	{"name": {"title": "...", "description": "...", "label": "shell command", ...}}
func Load(path string) ([]Composite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var composites []Composite
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		composites, err = parseYAML(data)
	default:
		composites, err = parseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return composites, nil
}

func parseJSON(data []byte) ([]Composite, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []Composite
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
		c := Composite{Name: name}
		for dec.More() {
			key, err := readKey(dec)
			if err != nil {
				return nil, fmt.Errorf("command %q: %w", name, err)
			}
			var value string
			if err := dec.Decode(&value); err != nil {
				return nil, fmt.Errorf("command %q, field %q: %w", name, key, err)
			}
			c.set(key, value)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, fmt.Errorf("command %q: %w", name, err)
		}
		out = append(out, c)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

func parseYAML(data []byte) ([]Composite, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping of command names")
	}
	var out []Composite
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, body := root.Content[i].Value, root.Content[i+1]
		if body.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("command %q (line %d): expected a mapping", name, body.Line)
		}
		c := Composite{Name: name}
		for j := 0; j+1 < len(body.Content); j += 2 {
			key, value := body.Content[j].Value, body.Content[j+1]
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("command %q, field %q (line %d): expected a string", name, key, value.Line)
			}
			c.set(key, value.Value)
		}
		out = append(out, c)
	}
	return out, nil
}
