// Package destination models the external work-tracking system: the snapshot
// of destinations the core reasons over, and the commit calls it hands off.
package destination

import (
	"errors"
	"fmt"
	"strings"
)

// Destination errors.
var (
	ErrUnknownDestination = errors.New("unknown destination")
	ErrUnknownSubList     = errors.New("unknown sub-list")
	ErrNoSubLists         = errors.New("destination has no sub-lists")
)

// ItemSummary is a recent item shown to the oracle for context.
type ItemSummary struct {
	ID          string   `json:"id" yaml:"id" toml:"id"`
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Description string   `json:"description,omitempty" yaml:"description" toml:"description"`
	Labels      []string `json:"labels,omitempty" yaml:"labels" toml:"labels"`
	Members     []string `json:"members,omitempty" yaml:"members" toml:"members"`
}

// SubList is a named division of a destination, such as a board column.
type SubList struct {
	ID     string        `json:"id" yaml:"id" toml:"id"`
	Name   string        `json:"name" yaml:"name" toml:"name"`
	Recent []ItemSummary `json:"recent,omitempty" yaml:"recent" toml:"recent"`
}

// Destination is a project or board that tasks are committed into.
type Destination struct {
	ID          string    `json:"id" yaml:"id" toml:"id"`
	Name        string    `json:"name" yaml:"name" toml:"name"`
	Description string    `json:"description,omitempty" yaml:"description" toml:"description"`
	SubLists    []SubList `json:"sub_lists" yaml:"sub_lists" toml:"sub_lists"`
	Labels      []string  `json:"labels,omitempty" yaml:"labels" toml:"labels"`
}

// ResolveSubList returns the sub-list named or identified by want, falling
// back to the first sub-list when want is empty or unknown.
func (d Destination) ResolveSubList(want string) (SubList, error) {
	if len(d.SubLists) == 0 {
		return SubList{}, ErrNoSubLists
	}
	if want != "" {
		for _, sl := range d.SubLists {
			if sl.ID == want || strings.EqualFold(sl.Name, want) {
				return sl, nil
			}
		}
	}
	return d.SubLists[0], nil
}

// SubList returns the sub-list with the given id or name.
func (d Destination) SubList(idOrName string) (SubList, bool) {
	for _, sl := range d.SubLists {
		if sl.ID == idOrName || strings.EqualFold(sl.Name, idOrName) {
			return sl, true
		}
	}
	return SubList{}, false
}

// Snapshot is a read-only view of the destinations available to one user.
type Snapshot struct {
	Destinations []Destination `json:"destinations" yaml:"destinations" toml:"destinations"`
}

// Find returns the destination with id.
func (s Snapshot) Find(id string) (Destination, bool) {
	for _, d := range s.Destinations {
		if d.ID == id {
			return d, true
		}
	}
	return Destination{}, false
}

// Validate checks ids are present and unique.
func (s Snapshot) Validate() error {
	seen := make(map[string]bool, len(s.Destinations))
	for i, d := range s.Destinations {
		if d.ID == "" {
			return fmt.Errorf("destination %d has no id", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate destination id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}
