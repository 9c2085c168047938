package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var referenceYAML []byte

// WordSense maps a surface word concept to the concepts it may stand for.
type WordSense struct {
	Word     string   `yaml:"word" json:"word"`
	Concepts []string `yaml:"concepts" json:"concepts"`
}

// Bundle is the serialisable form of a knowledge base: explicit patterns,
// word senses and the concept hierarchy.
type Bundle struct {
	Patterns  []Pattern   `yaml:"patterns" json:"patterns"`
	Words     []WordSense `yaml:"words" json:"words"`
	Hierarchy []Family    `yaml:"hierarchy" json:"hierarchy"`
}

// Parse decodes and validates a YAML bundle.
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile reads a YAML bundle from path.
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge bundle: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return b, nil
}

// SaveFile writes b to path as YAML.
func (b *Bundle) SaveFile(path string) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal knowledge bundle: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create bundle dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write knowledge bundle: %w", err)
	}
	return nil
}

// Reference returns the built-in reference knowledge base.
func Reference() *Bundle {
	b, err := Parse(referenceYAML)
	if err != nil {
		panic(fmt.Sprintf("knowledge: embedded reference bundle is invalid: %v", err))
	}
	return b
}

// Validate checks that every entry is named and non-empty.
func (b *Bundle) Validate() error {
	for i, p := range b.Patterns {
		if p.Name == "" {
			return fmt.Errorf("pattern %d has no name", i)
		}
		if len(p.Slots) == 0 {
			return fmt.Errorf("pattern %s has no slots", p.Name)
		}
		for _, s := range p.Slots {
			if s == "" || s == Terminator {
				return fmt.Errorf("pattern %s has an invalid slot %q", p.Name, s)
			}
		}
	}
	for i, w := range b.Words {
		if w.Word == "" {
			return fmt.Errorf("word %d has no name", i)
		}
		if len(w.Concepts) == 0 {
			return fmt.Errorf("word %s has no concepts", w.Word)
		}
	}
	for i, f := range b.Hierarchy {
		if f.Parent == "" {
			return fmt.Errorf("hierarchy entry %d has no parent", i)
		}
	}
	return nil
}

// Catalogue compiles the bundle's patterns. Every word sense becomes a
// one-slot pattern named after the sense, appended after the explicit
// patterns.
func (b *Bundle) Catalogue() *Catalogue {
	c := NewCatalogue(b.Patterns...)
	for _, w := range b.Words {
		for _, concept := range w.Concepts {
			c.Add(Pattern{Name: concept, Slots: []string{w.Word}})
		}
	}
	return c
}

// DictHierarchy compiles the bundle's hierarchy.
func (b *Bundle) DictHierarchy() *DictHierarchy {
	return NewDictHierarchy(b.Hierarchy...)
}

// Without returns a copy of b with every word sense naming concept removed.
// Words left without senses are dropped.
func (b *Bundle) Without(concept string) *Bundle {
	out := &Bundle{
		Patterns:  append([]Pattern(nil), b.Patterns...),
		Hierarchy: append([]Family(nil), b.Hierarchy...),
	}
	for _, w := range b.Words {
		var kept []string
		for _, c := range w.Concepts {
			if c != concept {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			out.Words = append(out.Words, WordSense{Word: w.Word, Concepts: kept})
		}
	}
	return out
}
