package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/pkg/resilience"
)

// Manifest is the YAML layout of a documentation manifest:
//
//	entities:
//	  - id: Game.Core.Ball
//	    name: Ball
//	    description: physics ball
//	    methods:
//	      - name: Launch
//	        description: fires the ball upward
//	    properties:
//	      - name: Speed
//	        description: current velocity magnitude
type Manifest struct {
	Entities []ManifestEntity `yaml:"entities"`
}

type ManifestEntity struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Namespace   string           `yaml:"namespace"`
	Description string           `yaml:"description"`
	Methods     []ManifestMember `yaml:"methods"`
	Properties  []ManifestMember `yaml:"properties"`
}

type ManifestMember struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ParseManifest decodes manifest YAML into entities. An entity without an
// id takes its name as id. Unknown keys are rejected.
func ParseManifest(data []byte, origin string) ([]docindex.Entity, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing manifest %s: %w", origin, err)
	}

	out := make([]docindex.Entity, 0, len(m.Entities))
	for _, me := range m.Entities {
		id := me.ID
		if id == "" {
			id = me.Name
		}
		e := docindex.Entity{
			ID:          id,
			Name:        me.Name,
			Namespace:   me.Namespace,
			Description: me.Description,
			Source:      origin,
			Members:     make([]docindex.Member, 0, len(me.Methods)+len(me.Properties)),
		}
		for _, mm := range me.Methods {
			e.Members = append(e.Members, docindex.Member{Kind: docindex.KindMethod, Name: mm.Name, Description: mm.Description})
		}
		for _, mm := range me.Properties {
			e.Members = append(e.Members, docindex.Member{Kind: docindex.KindProperty, Name: mm.Name, Description: mm.Description})
		}
		out = append(out, e)
	}
	return out, nil
}

// ManifestSource reads one or more manifest files, in order.
type ManifestSource struct {
	Paths []string
}

func (s ManifestSource) Name() string {
	return "manifest"
}

func (s ManifestSource) Collect(ctx context.Context) ([]docindex.Entity, error) {
	var out []docindex.Entity
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading manifest %s: %w", path, err)
		}
		entities, err := ParseManifest(data, path)
		if err != nil {
			// A malformed file stays malformed; retrying cannot help.
			return nil, resilience.Permanent(err)
		}
		out = append(out, entities...)
	}
	return out, nil
}
