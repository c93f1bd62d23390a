package script

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseYAML reads the YAML form of a script.
func ParseYAML(name string, r io.Reader) (*Script, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{File: name, Msg: fmt.Sprintf("read: %v", err)}
	}

	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, &ParseError{File: name, Msg: fmt.Sprintf("parse YAML: %v", err)}
	}
	s.File = name

	if s.Version != "" {
		v, err := strconv.ParseFloat(s.Version, 64)
		if err != nil {
			return nil, &ParseError{File: name, Msg: fmt.Sprintf("invalid version %q", s.Version)}
		}
		if v > MaxVersion {
			return nil, &ParseError{File: name, Msg: fmt.Sprintf("unsupported version %s", s.Version)}
		}
	}

	defs := s.Definitions[:0]
	for i, d := range s.Definitions {
		if !d.Kind.Valid() {
			s.Warnings = append(s.Warnings, Warning{File: name, Msg: fmt.Sprintf("definition %d: unknown type %q", i, d.Kind)})
			continue
		}
		if d.Name == "" {
			s.Warnings = append(s.Warnings, Warning{File: name, Msg: fmt.Sprintf("definition %d: missing name", i)})
			continue
		}
		defs = append(defs, d)
	}
	s.Definitions = defs

	for i := range s.Topics {
		t := &s.Topics[i]
		t.Name = strings.ToLower(strings.TrimSpace(t.Name))
		switch t.Name {
		case "":
			t.Name = DefaultTopic
		case "begin":
			t.Name = BeginTopic
		}
	}
	return &s, nil
}

// IsScriptFile reports whether a file name has a script extension.
func IsScriptFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".rive", ".rs", ".yaml", ".yml":
		return true
	}
	return false
}

// ParseFile parses a file, choosing the form by extension.
func ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(path, f)
	default:
		return Parse(path, f)
	}
}
