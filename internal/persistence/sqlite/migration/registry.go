package migration

import (
	"errors"
	"fmt"
	"sort"
)

// Registry is the ordered, append-only list of changesets for one kind of
// database file
type Registry struct {
	name       string
	changeSets []ChangeSet
}

// ManifestEntry summarises one registered changeset
type ManifestEntry struct {
	Version     int
	Description string
	Fingerprint string
}

// NewRegistry validates changeSets and returns a Registry. Versions must be
// unique, ascending and contiguous, and every operation must be well formed.
func NewRegistry(name string, changeSets ...ChangeSet) (*Registry, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: registry needs a name", ErrInvalidRegistry)
	}
	if err := validateChangeSets(changeSets); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRegistry, name, err)
	}
	return &Registry{
		name:       name,
		changeSets: append([]ChangeSet(nil), changeSets...),
	}, nil
}

// MustRegistry is like NewRegistry but panics on an invalid registry.
// It is meant for statically compiled registries.
func MustRegistry(name string, changeSets ...ChangeSet) *Registry {
	r, err := NewRegistry(name, changeSets...)
	if err != nil {
		panic(err)
	}
	return r
}

// validateChangeSets ensures the changeset sequence has no duplicates or gaps
// and that every operation validates
func validateChangeSets(changeSets []ChangeSet) error {
	if len(changeSets) == 0 {
		return errors.New("no changesets")
	}
	if changeSets[0].Version <= 0 {
		return fmt.Errorf("first changeset version %d must be positive", changeSets[0].Version)
	}

	var errs []error
	for i, cs := range changeSets {
		if i > 0 {
			prev := changeSets[i-1].Version
			switch {
			case cs.Version == prev:
				errs = append(errs, fmt.Errorf("%w: %d", ErrDuplicateVersion, cs.Version))
			case cs.Version != prev+1:
				errs = append(errs, fmt.Errorf("%w: expected %d after %d, found %d", ErrVersionGap, prev+1, prev, cs.Version))
			}
		}
		if len(cs.Operations) == 0 {
			errs = append(errs, fmt.Errorf("changeset %d has no operations", cs.Version))
		}
		for j, op := range cs.Operations {
			if op == nil {
				errs = append(errs, fmt.Errorf("changeset %d step %d is nil", cs.Version, j+1))
				continue
			}
			if v, ok := op.(validator); ok {
				if err := v.validate(); err != nil {
					errs = append(errs, fmt.Errorf("changeset %d step %d: %w", cs.Version, j+1, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Name returns the registry name, e.g. "network"
func (r *Registry) Name() string {
	return r.name
}

// Floor returns the version a new file is initialised at: one below the
// first changeset
func (r *Registry) Floor() int {
	return r.changeSets[0].Version - 1
}

// Latest returns the version of the last changeset
func (r *Registry) Latest() int {
	return r.changeSets[len(r.changeSets)-1].Version
}

// ChangeSets returns a copy of the registered changesets in ascending order
func (r *Registry) ChangeSets() []ChangeSet {
	return append([]ChangeSet(nil), r.changeSets...)
}

// Pending returns the changesets with a version greater than current
func (r *Registry) Pending(current int) []ChangeSet {
	i := sort.Search(len(r.changeSets), func(i int) bool {
		return r.changeSets[i].Version > current
	})
	return append([]ChangeSet(nil), r.changeSets[i:]...)
}

// SplitKinds returns the split database kinds created by the registry's
// SplitDatabase operations
func (r *Registry) SplitKinds() []string {
	var kinds []string
	for _, cs := range r.changeSets {
		for _, op := range cs.Operations {
			if split, ok := op.(SplitDatabase); ok {
				kinds = append(kinds, split.Kind)
			}
		}
	}
	return kinds
}

// Manifest describes every changeset with its fingerprint
func (r *Registry) Manifest() []ManifestEntry {
	entries := make([]ManifestEntry, 0, len(r.changeSets))
	for _, cs := range r.changeSets {
		entries = append(entries, ManifestEntry{
			Version:     cs.Version,
			Description: cs.Description,
			Fingerprint: cs.Fingerprint(),
		})
	}
	return entries
}
