// Package extractor defines the capability contract for entity extraction
// from memory content, and its init()-time plugin registry, grounded on the
// teacher's registry plugin pattern.
package extractor

import (
	"context"
	"fmt"

	"github.com/corenexus/memory-service/internal/model"
)

// Mention is one raw entity mention found in a piece of text, before
// normalization or node assignment.
type Mention struct {
	EntityType model.EntityType
	Text       string
	CharStart  int
	CharEnd    int
	Confidence float64
}

// Extractor finds entity mentions in text.
type Extractor interface {
	ExtractMentions(ctx context.Context, text string) ([]Mention, error)
}

// Loader constructs an Extractor from the running configuration.
type Loader func(ctx context.Context) (Extractor, error)

// Plugin is a named, registerable extractor constructor.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an extractor plugin. Called from each plugin's init().
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered extractor plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named extractor plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown extractor %q; valid: %v", name, Names())
}
