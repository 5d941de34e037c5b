// Package catalog loads the decision taxonomy (preliminary and merit
// decisions) from a YAML file and validates vote references against it.
package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

// Entry is one decision of the taxonomy. Retired entries stay resolvable for
// history but cannot be used by new votes.
type Entry struct {
	Code    string `yaml:"code"`
	Label   string `yaml:"label"`
	Retired bool   `yaml:"retired"`
}

type file struct {
	Preliminary []Entry `yaml:"preliminary"`
	Merit       []Entry `yaml:"merit"`
}

// Catalog is immutable after Load and safe for concurrent use.
type Catalog struct {
	preliminary map[id.DecisionCode]Entry
	merit       map[id.DecisionCode]Entry
}

// Load reads the catalog at path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decision catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a catalog document. Codes are normalized with
// id.ParseDecisionCode and must be unique within their list.
func Parse(r io.Reader) (*Catalog, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode decision catalog: %w", err)
	}

	preliminary, err := index("preliminary", doc.Preliminary)
	if err != nil {
		return nil, err
	}
	merit, err := index("merit", doc.Merit)
	if err != nil {
		return nil, err
	}
	return &Catalog{preliminary: preliminary, merit: merit}, nil
}

func index(list string, entries []Entry) (map[id.DecisionCode]Entry, error) {
	out := make(map[id.DecisionCode]Entry, len(entries))
	for i, e := range entries {
		code, err := id.ParseDecisionCode(e.Code)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", list, i, err)
		}
		if _, dup := out[code]; dup {
			return nil, fmt.Errorf("%s[%d]: duplicate decision code %s", list, i, code)
		}
		e.Code = code.String()
		out[code] = e
	}
	return out, nil
}

func (c *Catalog) ValidatePreliminary(code id.DecisionCode) error {
	return validate(c.preliminary, "preliminary", code)
}

func (c *Catalog) ValidateMerit(code id.DecisionCode) error {
	return validate(c.merit, "merit", code)
}

func validate(entries map[id.DecisionCode]Entry, list string, code id.DecisionCode) error {
	e, ok := entries[code]
	if !ok {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown %s decision %s", list, code))
	}
	if e.Retired {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s decision %s is retired", list, code))
	}
	return nil
}

// Label returns the display label of a preliminary or merit decision.
func (c *Catalog) Label(code id.DecisionCode) (string, bool) {
	if e, ok := c.merit[code]; ok {
		return e.Label, true
	}
	if e, ok := c.preliminary[code]; ok {
		return e.Label, true
	}
	return "", false
}
