package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// GetPath retrieves a value from the configuration using a dot-notation path
// such as "command.timeout". An empty path returns the whole configuration.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Command.Args = append([]string(nil), c.Command.Args...)
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.GitHub.Token)
	mask(&out.Webhook.Secret)
	mask(&out.API.APIKey)
	return &out
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}

// EditValue sets the scalar at path in a YAML document, keeping comments and
// layout of the rest of it. The edited document must still parse into a Config.
func EditValue(doc []byte, path, value string) ([]byte, error) {
	if err := checkScalarPath(path); err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root.Kind == 0 {
		// Empty document.
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("no valid configuration document")
	}

	target, err := findNode(root.Content[0], path, true)
	if err != nil {
		return nil, fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}
	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = guessTag(value)
	target.Content = nil

	candidate, err := yaml.Marshal(&root)
	if err != nil {
		return nil, err
	}
	if _, err := Parse(candidate); err != nil {
		return nil, fmt.Errorf("rejected %s=%s: %w", path, value, err)
	}
	return candidate, nil
}

// SetFileValue applies EditValue to the file at configPath in place.
func SetFileValue(configPath, path, value string) error {
	original, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	candidate, err := EditValue(original, path, value)
	if err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(configPath); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(configPath, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}
	return nil
}

// checkScalarPath rejects paths that do not name a scalar Config field.
func checkScalarPath(path string) error {
	t := reflect.TypeOf(Config{})
	for _, part := range strings.Split(path, ".") {
		if t.Kind() != reflect.Struct {
			return fmt.Errorf("unknown config key %q", path)
		}
		field, ok := fieldByYAMLName(t, part)
		if !ok {
			return fmt.Errorf("unknown config key %q", path)
		}
		t = field.Type
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Map:
		return fmt.Errorf("config key %q is not a scalar", path)
	}
	return nil
}

func fieldByYAMLName(t reflect.Type, name string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	parts := strings.Split(path, ".")
	current := node

	for _, part := range parts {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("not a mapping node")
		}

		found := false
		for i := 0; i < len(current.Content); i += 2 {
			keyNode := current.Content[i]
			if keyNode.Value == part {
				current = current.Content[i+1]
				found = true
				break
			}
		}

		if !found {
			if !create {
				return nil, fmt.Errorf("key %q not found", part)
			}
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
			// Intermediate keys are mappings; the caller overwrites the leaf.
			valueNode := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			current.Content = append(current.Content, keyNode, valueNode)
			current = valueNode
		}
	}

	return current, nil
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := true
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit && v != "" && v != "-" {
		return "!!int"
	}
	return "!!str"
}
