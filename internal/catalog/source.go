package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/python.yaml
var embeddedYAML []byte

// document is the on-disk YAML layout of a catalog definition.
type document struct {
	Categories []Category `yaml:"categories"`
}

// Decode reads a YAML catalog definition. Unknown fields are rejected so a
// misspelled key fails at load time instead of silently dropping data.
func Decode(r io.Reader) ([]Category, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decoding catalog: empty document")
		}
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return doc.Categories, nil
}

// Encode writes categories in the layout accepted by Decode.
func Encode(w io.Writer, categories []Category) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{Categories: categories}); err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return enc.Close()
}

// LoadFile decodes and validates the catalog stored at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog file %s: %w", path, err)
	}
	defer f.Close()

	categories, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("loading catalog file %s: %w", path, err)
	}
	return New(categories)
}

// Embedded returns the categories of the catalog compiled into the binary.
func Embedded() ([]Category, error) {
	return Decode(bytes.NewReader(embeddedYAML))
}

// LoadEmbedded decodes and validates the built-in catalog.
func LoadEmbedded() (*Catalog, error) {
	categories, err := Embedded()
	if err != nil {
		return nil, fmt.Errorf("loading embedded catalog: %w", err)
	}
	return New(categories)
}
