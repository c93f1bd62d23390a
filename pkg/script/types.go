// Package script defines the declarative script form the brain is built
// from, and reads it from RiveScript text or YAML.
package script

import (
	"fmt"

	"github.com/voicetyped/rivebot/pkg/lexicon"
)

// BeginTopic is the reserved name of the handshake topic.
const BeginTopic = "__begin__"

// DefaultTopic receives triggers declared outside any topic block.
const DefaultTopic = "random"

// MaxVersion is the newest script version this parser understands.
const MaxVersion = 2.0

// Script is one parsed source file.
type Script struct {
	File        string       `yaml:"file,omitempty"        json:"file,omitempty"`
	Version     string       `yaml:"version"               json:"version"`
	Definitions []Definition `yaml:"definitions"           json:"definitions,omitempty"`
	Topics      []Topic      `yaml:"topics"                json:"topics,omitempty"`
	Objects     []Object     `yaml:"objects"               json:"objects,omitempty"`
	Warnings    []Warning    `yaml:"-"                     json:"warnings,omitempty"`
}

// Definition is a lexicon entry. Undefine removes the name instead.
type Definition struct {
	Kind     lexicon.Kind `yaml:"kind"     json:"kind"`
	Name     string       `yaml:"name"     json:"name"`
	Values   []string     `yaml:"values"   json:"values,omitempty"`
	Undefine bool         `yaml:"undefine" json:"undefine,omitempty"`
	Line     int          `yaml:"-"        json:"line,omitempty"`
}

// Topic is a named group of triggers.
type Topic struct {
	Name     string    `yaml:"name"     json:"name"`
	Includes []string  `yaml:"includes" json:"includes,omitempty"`
	Inherits []string  `yaml:"inherits" json:"inherits,omitempty"`
	Triggers []Trigger `yaml:"triggers" json:"triggers,omitempty"`
}

// Trigger is an uncompiled pattern with its replies.
type Trigger struct {
	Pattern    string   `yaml:"pattern"    json:"pattern"`
	Previous   string   `yaml:"previous"   json:"previous,omitempty"`
	Replies    []string `yaml:"replies"    json:"replies,omitempty"`
	Conditions []string `yaml:"conditions" json:"conditions,omitempty"`
	Redirect   string   `yaml:"redirect"   json:"redirect,omitempty"`
	Line       int      `yaml:"-"          json:"line,omitempty"`
}

// Object is an object macro: code in some language, run by <call>.
type Object struct {
	Name     string `yaml:"name"     json:"name"`
	Language string `yaml:"language" json:"language"`
	Body     string `yaml:"body"     json:"body"`
	Line     int    `yaml:"-"        json:"line,omitempty"`
}

// Warning is a non-fatal problem found while parsing.
type Warning struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Msg  string `json:"msg"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Msg)
}

// ParseError is a fatal problem that stops a file from loading.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}
