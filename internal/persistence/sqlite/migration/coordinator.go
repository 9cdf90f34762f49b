package migration

import (
	"context"
	"errors"
	"fmt"
)

// DatabaseFile pairs a database file with the registry that upgrades it
type DatabaseFile struct {
	Path     string
	Registry *Registry
}

// Coordinator upgrades a primary database that splits tables out into other
// files, then upgrades each split file with its own registry
type Coordinator struct {
	primary DatabaseFile
	splits  []DatabaseFile
	opts    []Option
}

// NewCoordinator validates the file layout. Every split kind produced by the
// primary registry needs a split file whose registry has the same name and
// covers the version the split is initialised at.
func NewCoordinator(primary DatabaseFile, splits []DatabaseFile, opts ...Option) (*Coordinator, error) {
	if primary.Path == "" || primary.Registry == nil {
		return nil, errors.New("primary database needs a path and a registry")
	}

	byName := make(map[string]DatabaseFile, len(splits))
	for _, split := range splits {
		if split.Path == "" || split.Registry == nil {
			return nil, errors.New("split database needs a path and a registry")
		}
		name := split.Registry.Name()
		if name == primary.Registry.Name() {
			return nil, fmt.Errorf("split database %s has the primary registry's name", name)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("split database %s is listed twice", name)
		}
		if split.Path == primary.Path {
			return nil, fmt.Errorf("split database %s shares the primary file %s", name, split.Path)
		}
		byName[name] = split
	}

	for _, cs := range primary.Registry.changeSets {
		for _, op := range cs.Operations {
			split, ok := op.(SplitDatabase)
			if !ok {
				continue
			}
			file, ok := byName[split.Kind]
			if !ok {
				return nil, fmt.Errorf("changeset %d splits out the %s database but no file is configured for it", cs.Version, split.Kind)
			}
			reg := file.Registry
			if split.Version < reg.Floor() || split.Version > reg.Latest() {
				return nil, fmt.Errorf("changeset %d initialises %s at version %d, outside its registry range %d..%d",
					cs.Version, split.Kind, split.Version, reg.Floor(), reg.Latest())
			}
		}
	}

	return &Coordinator{
		primary: primary,
		splits:  append([]DatabaseFile(nil), splits...),
		opts:    append([]Option(nil), opts...),
	}, nil
}

// Environment returns the split file paths passed to the primary runner
func (c *Coordinator) Environment() Environment {
	env := Environment{SplitPaths: make(map[string]string, len(c.splits))}
	for _, split := range c.splits {
		env.SplitPaths[split.Registry.Name()] = split.Path
	}
	return env
}

func (c *Coordinator) options() []Option {
	opts := make([]Option, 0, len(c.opts)+1)
	opts = append(opts, c.opts...)
	return append(opts, WithEnvironment(c.Environment()))
}

// Upgrade upgrades the primary file, then every split file in order. It stops
// at the first failure and returns the results gathered so far.
func (c *Coordinator) Upgrade(ctx context.Context) ([]Result, error) {
	opts := c.options()
	results := make([]Result, 0, len(c.splits)+1)

	result, err := UpgradeFile(ctx, c.primary.Path, c.primary.Registry, opts...)
	results = append(results, result)
	if err != nil {
		return results, err
	}

	for _, split := range c.splits {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("upgrade stopped before the %s database: %w", split.Registry.Name(), err)
		}
		result, err := UpgradeFile(ctx, split.Path, split.Registry, opts...)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Plan reports what Upgrade would do without changing any file. A split file
// that the primary upgrade would create is planned from the version it is
// initialised at.
func (c *Coordinator) Plan(ctx context.Context) ([]Plan, error) {
	opts := c.options()
	plans := make([]Plan, 0, len(c.splits)+1)

	primary, err := PlanFile(ctx, c.primary.Path, c.primary.Registry, opts...)
	if err != nil {
		return plans, err
	}
	plans = append(plans, primary)

	created := make(map[string]int)
	for _, cs := range primary.Pending {
		for _, op := range cs.Operations {
			if split, ok := op.(SplitDatabase); ok {
				created[split.Kind] = split.Version
			}
		}
	}

	for _, split := range c.splits {
		reg := split.Registry
		if version, ok := created[reg.Name()]; ok {
			plans = append(plans, Plan{
				Database:       reg.Name(),
				CurrentVersion: version,
				Fresh:          true,
				Pending:        reg.Pending(version),
			})
			continue
		}
		plan, err := PlanFile(ctx, split.Path, reg, opts...)
		if err != nil {
			return plans, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
