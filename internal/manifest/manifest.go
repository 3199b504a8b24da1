// Package manifest loads the island manifest: which islands a page has,
// where each one runs and when it activates.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zenith/hydra/internal/dom"
	"github.com/zenith/hydra/internal/island"
	"github.com/zenith/hydra/internal/render"
)

// Defaults fill fields an island entry leaves empty.
type Defaults struct {
	Exec     string `yaml:"exec"`
	Strategy string `yaml:"strategy"`
	Trust    string `yaml:"trust"`
}

// Island is one manifest entry.
type Island struct {
	ID          string         `yaml:"id"`
	Entry       string         `yaml:"entry"`
	Exec        string         `yaml:"exec"`
	Strategy    string         `yaml:"strategy"`
	Trust       string         `yaml:"trust"`
	Proof       string         `yaml:"proof"`
	Public      map[string]any `yaml:"public"`
	Data        map[string]any `yaml:"data"`
	Placeholder render.VNode   `yaml:"placeholder"` // server-rendered content
}

type Manifest struct {
	Defaults Defaults `yaml:"defaults"`
	Islands  []Island `yaml:"islands"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read island manifest: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a manifest, applies defaults and validates every entry.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse island manifest: %w", err)
	}
	if m.Defaults.Exec == "" {
		m.Defaults.Exec = string(island.ExecLocal)
	}
	if m.Defaults.Strategy == "" {
		m.Defaults.Strategy = string(island.StrategyImmediate)
	}
	if m.Defaults.Trust == "" {
		m.Defaults.Trust = string(island.TrustNone)
	}

	seen := make(map[string]bool, len(m.Islands))
	for i := range m.Islands {
		is := &m.Islands[i]
		if is.ID == "" {
			return nil, fmt.Errorf("island #%d: id is required", i+1)
		}
		if seen[is.ID] {
			return nil, fmt.Errorf("island %s: duplicate id", is.ID)
		}
		seen[is.ID] = true
		if is.Entry == "" {
			is.Entry = is.ID
		}
		if is.Exec == "" {
			is.Exec = m.Defaults.Exec
		}
		if is.Strategy == "" {
			is.Strategy = m.Defaults.Strategy
		}
		if is.Trust == "" {
			is.Trust = m.Defaults.Trust
		}
		if !island.ExecType(is.Exec).Valid() {
			return nil, fmt.Errorf("island %s: unknown exec %q", is.ID, is.Exec)
		}
		if !island.Strategy(is.Strategy).Valid() {
			return nil, fmt.Errorf("island %s: unknown strategy %q", is.ID, is.Strategy)
		}
		if island.TrustLevel(is.Trust).Rank() > island.TrustLevel(island.TrustVerified).Rank() {
			return nil, fmt.Errorf("island %s: unknown trust level %q", is.ID, is.Trust)
		}
		if err := render.Validate(is.Placeholder); err != nil {
			return nil, fmt.Errorf("island %s: placeholder: %w", is.ID, err)
		}
	}
	return &m, nil
}

// Descriptors binds every island to its placeholder element in doc. The
// element is found by data-island, then by id.
func (m *Manifest) Descriptors(doc *dom.Document) ([]island.Descriptor, error) {
	out := make([]island.Descriptor, 0, len(m.Islands))
	for _, is := range m.Islands {
		el := doc.Island(is.ID)
		if el == nil {
			el = doc.ByID(is.ID)
		}
		if el == nil {
			return nil, fmt.Errorf("island %s: no element in document", is.ID)
		}
		out = append(out, island.Descriptor{
			ID:         is.ID,
			Entry:      is.Entry,
			ExecType:   island.ExecType(is.Exec),
			Strategy:   island.Strategy(is.Strategy),
			Trust:      island.TrustLevel(is.Trust),
			Proof:      is.Proof,
			PublicData: is.Public,
			Data:       is.Data,
			Element:    el,
		})
	}
	return out, nil
}

// Placeholders returns the server-rendered shells for every island.
func (m *Manifest) Placeholders() []render.PlaceholderProps {
	out := make([]render.PlaceholderProps, 0, len(m.Islands))
	for _, is := range m.Islands {
		out = append(out, render.PlaceholderProps{
			ID:       is.ID,
			Entry:    is.Entry,
			ExecType: is.Exec,
			Strategy: is.Strategy,
			Content:  is.Placeholder,
		})
	}
	return out
}
