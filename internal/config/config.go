// Package config loads the server registry (spec.md §6): the fixed
// {name, node, port} triples each server and client resolve against,
// parsed with github.com/pelletier/go-toml/v2 (SPEC_FULL.md AMBIENT STACK).
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ServerPlacement is one entry in the registry (spec.md §6 "Server
// registry").
type ServerPlacement struct {
	Name string `toml:"name"`
	Node uint16 `toml:"node"`
	Port uint16 `toml:"port"`
	Ring int    `toml:"ring"`
}

// Registry is the full compile-time-fixed placement table for one cluster
// configuration.
type Registry struct {
	Cluster string            `toml:"cluster"`
	Servers []ServerPlacement `toml:"servers"`
}

// Load parses a TOML registry file at path.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Registry
	if err := toml.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Lookup returns the placement for name, and whether it was found.
func (r *Registry) Lookup(name string) (ServerPlacement, bool) {
	for _, s := range r.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerPlacement{}, false
}
