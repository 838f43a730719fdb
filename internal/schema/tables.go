// Package schema holds the static sync classification of local tables:
// which tables participate in synchronization, which are local-only, and
// the fixed dependency order in which synchronized tables are processed.
package schema

// Table names known to the local database.
const (
	TableAccounts      = "accounts"
	TableBudgets       = "budgets"
	TableTransactions  = "transactions"
	TableTransfers     = "transfers"
	TableCategories    = "categories"
	TableExchangeRates = "exchange_rates"
)

// Kind is the sync classification of a table.
type Kind int

const (
	// Synchronized tables are exchanged with the remote service.
	Synchronized Kind = iota
	// Excluded tables exist locally but never cross the wire in either
	// direction: categories is shipped reference data, exchange_rates is a
	// locally maintained cache.
	Excluded
)

// syncOrder is the hand-curated total order in which synchronized tables are
// pulled and pushed. Parents come before children with one deliberate
// exception: transactions and transfers reference each other by id, so no
// topological order exists for them. They are kept adjacent and the remote
// service tolerates a dangling reference between the two within a single
// applied changeset.
var syncOrder = []string{
	TableAccounts,
	TableBudgets,
	TableTransactions,
	TableTransfers,
}

// excluded is the set of local-only tables.
var excluded = map[string]struct{}{
	TableCategories:    {},
	TableExchangeRates: {},
}

// Classify reports whether a table participates in sync. Tables the
// classifier has never heard of are treated as synchronized so that new
// server-side tables survive a pull even before the client learns their
// ordering.
func Classify(table string) Kind {
	if _, ok := excluded[table]; ok {
		return Excluded
	}
	return Synchronized
}

// IsExcluded is a convenience wrapper over Classify.
func IsExcluded(table string) bool {
	return Classify(table) == Excluded
}

// DependencyOrder returns the fixed table processing order. The returned
// slice is a copy; callers may not mutate sync configuration.
func DependencyOrder() []string {
	out := make([]string, len(syncOrder))
	copy(out, syncOrder)
	return out
}
