// Package tasks holds the import definitions the service exposes: which
// fields each sheet carries, the rules its rows must satisfy, and how
// accepted rows reach the database. Definitions register at init time and
// are looked up by key when an upload arrives.
package tasks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/importkit/internal/core"
	"github.com/JonMunkholm/importkit/internal/postgres"
	"github.com/JonMunkholm/importkit/internal/rules"
)

// Definition describes one importable sheet type.
type Definition struct {
	// Key identifies the definition in URLs and lookups.
	Key string

	// Label and Group are the human-facing name and listing group.
	Label string
	Group string

	// Specs are the sheet's columns.
	Specs []core.FieldSpec

	// DuplicateKeys enable intra-batch duplicate detection.
	DuplicateKeys [][]string

	// Rules builds the cross-reference validators against the store the
	// import runs on. Called once per run.
	Rules func(db postgres.DBTX) ([]rules.Validator, error)

	// Persister builds the destination for accepted rows. Called once per
	// run.
	Persister func(db postgres.DBTX) core.Persister
}

// NewTask assembles a runnable task for this definition. db serves both the
// rules and the persister; tx is nil when transactions are not wanted.
func (d Definition) NewTask(db postgres.DBTX, tx core.TxRunner, opts core.Options, extra ...core.TaskOption) (*core.Task, error) {
	taskOpts := []core.TaskOption{
		core.WithDuplicateKeys(d.DuplicateKeys...),
	}
	if d.Rules != nil {
		validators, err := d.Rules(db)
		if err != nil {
			return nil, fmt.Errorf("build rules for %s: %w", d.Key, err)
		}
		taskOpts = append(taskOpts, core.WithRules(validators...))
	}
	if d.Persister != nil {
		taskOpts = append(taskOpts, core.WithPersister(d.Persister(db)))
	}
	if tx != nil {
		taskOpts = append(taskOpts, core.WithTxRunner(tx))
	}
	taskOpts = append(taskOpts, extra...)

	return core.NewTask(d.Specs, opts, taskOpts...), nil
}

var (
	registry   = make(map[string]Definition)
	registryMu sync.RWMutex
)

// Register adds a definition to the registry.
// Panics if a definition with the same key is already registered.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("import definition already registered: %s", def.Key))
	}
	registry[def.Key] = def
}

// Get returns a definition by key.
// Returns false if not found.
func Get(key string) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns every registered definition.
// Sorted by group then by key for consistent ordering.
func All() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Definition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Key < result[j].Key
	})

	return result
}

// Groups returns all unique group names, sorted alphabetically.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// Clear removes all registered definitions.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Definition)
}
