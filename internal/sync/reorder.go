package sync

import (
	"sort"

	"github.com/walletbase/walletsync/internal/schema"
)

// Reorder turns a changeset into a table-ordered sequence safe to apply or
// push: tables named by schema.DependencyOrder come first, in that relative
// order; tables the order does not know about are appended afterward in a
// stable order; excluded tables are dropped entirely.
//
// This is a stable partition over a hand-curated total order, not a
// topological sort. The dependency graph contains one intentional cycle
// (transactions and transfers reference each other), so the order is
// configuration, not something derived from foreign keys.
func Reorder(cs ChangeSet) OrderedChanges {
	if len(cs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(cs))
	out := make(OrderedChanges, 0, len(cs))

	for _, table := range schema.DependencyOrder() {
		tc, ok := cs[table]
		if !ok {
			continue
		}
		seen[table] = struct{}{}
		if schema.IsExcluded(table) {
			continue
		}
		out = append(out, TableEntry{Table: table, Changes: tc})
	}

	// Tables the order does not list. Map iteration is unordered, so sort
	// by name to keep the appended tail deterministic.
	var rest []string
	for table := range cs {
		if _, ok := seen[table]; ok {
			continue
		}
		if schema.IsExcluded(table) {
			continue
		}
		rest = append(rest, table)
	}
	sort.Strings(rest)
	for _, table := range rest {
		out = append(out, TableEntry{Table: table, Changes: cs[table]})
	}

	return out
}

// Filter drops excluded tables from a changeset without reordering it. Both
// pull and push filter through the same classifier so inclusion is symmetric
// between directions.
func Filter(cs ChangeSet) ChangeSet {
	out := make(ChangeSet, len(cs))
	for table, tc := range cs {
		if schema.IsExcluded(table) {
			continue
		}
		out[table] = tc
	}
	return out
}
