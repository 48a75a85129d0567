package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RefMode declares how the references in a pack are meant to be used.
// Everything except style-only conditioning is refused by the style guard.
type RefMode string

const (
	RefModeStyle       RefMode = "style"
	RefModeProp        RefMode = "prop"
	RefModeSubject     RefMode = "subject"
	RefModePose        RefMode = "pose"
	RefModeEnvironment RefMode = "environment"
	RefModeMixed       RefMode = "mixed"
)

// Valid reports whether the mode is one of the declared usage modes.
func (m RefMode) Valid() bool {
	switch m {
	case RefModeStyle, RefModeProp, RefModeSubject, RefModePose, RefModeEnvironment, RefModeMixed:
		return true
	}
	return false
}

// RefEntry is one weighted reference image in a pack.
type RefEntry struct {
	Path   string  `json:"path" yaml:"path"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// ReferencePack is an ordered, weighted collection of style references plus a
// declared usage mode. Entries are deduplicated by content hash in preflight.
type ReferencePack struct {
	Mode RefMode    `json:"mode" yaml:"mode"`
	Refs []RefEntry `json:"refs" yaml:"refs"`
}

// Normalize fills defaults: empty mode becomes style, non-positive weights
// become 1.
func (p *ReferencePack) Normalize() {
	if p.Mode == "" {
		p.Mode = RefModeStyle
	}
	for i := range p.Refs {
		if p.Refs[i].Weight <= 0 {
			p.Refs[i].Weight = 1
		}
	}
}

// Validate checks the pack shape. A pack with zero references is valid
// (text-only generation).
func (p ReferencePack) Validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: unknown reference mode %q", ErrInvalidInput, p.Mode)
	}
	for i, ref := range p.Refs {
		if strings.TrimSpace(ref.Path) == "" {
			return fmt.Errorf("%w: reference %d has empty path", ErrInvalidInput, i)
		}
	}
	return nil
}

// ParseReferencePack decodes a pack from JSON or YAML. JSON documents are
// detected by their leading brace; everything else goes through the YAML
// decoder.
func ParseReferencePack(data []byte) (ReferencePack, error) {
	var pack ReferencePack
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return pack, fmt.Errorf("%w: empty reference pack document", ErrInvalidInput)
	}
	var err error
	if trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &pack)
	} else {
		err = yaml.Unmarshal(trimmed, &pack)
	}
	if err != nil {
		return pack, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	pack.Normalize()
	if err := pack.Validate(); err != nil {
		return ReferencePack{}, err
	}
	return pack, nil
}

// LoadReferencePack reads and parses a pack file. The extension only matters
// for error messages; the content sniffing in ParseReferencePack decides the
// format.
func LoadReferencePack(path string) (ReferencePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ReferencePack{}, fmt.Errorf("reference pack %s: %w", filepath.Base(path), err)
	}
	return ParseReferencePack(data)
}
