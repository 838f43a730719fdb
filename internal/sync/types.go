package sync

import "encoding/json"

// Record is one row as it crosses the wire: an opaque mapping of column name
// to scalar value. The sync engine never interprets column semantics, only
// row identity and table membership.
type Record map[string]any

// ID returns the record's identity column, if present and a string.
func (r Record) ID() (string, bool) {
	v, ok := r["id"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// TableChanges holds the created/updated/deleted rows of one table within a
// changeset. A given record id appears in at most one of the three per table.
type TableChanges struct {
	Created []Record `json:"created"`
	Updated []Record `json:"updated"`
	Deleted []string `json:"deleted"`
}

// Count returns the total number of items across all three arrays.
func (tc TableChanges) Count() int {
	return len(tc.Created) + len(tc.Updated) + len(tc.Deleted)
}

// IsEmpty reports whether the table carries no changes at all.
func (tc TableChanges) IsEmpty() bool {
	return tc.Count() == 0
}

// ChangeSet maps table name to that table's changes. It is constructed fresh
// on every cycle, either from the local store or from a pull response, and is
// never persisted.
type ChangeSet map[string]TableChanges

// Count returns the total item count across all tables.
func (cs ChangeSet) Count() int {
	total := 0
	for _, tc := range cs {
		total += tc.Count()
	}
	return total
}

// OrderedChanges is a changeset with an explicit table order, produced by the
// reorderer and consumed by apply and push.
type OrderedChanges []TableEntry

// TableEntry pairs a table name with its changes.
type TableEntry struct {
	Table   string
	Changes TableChanges
}

// Count returns the total item count across all entries.
func (oc OrderedChanges) Count() int {
	total := 0
	for _, e := range oc {
		total += e.Changes.Count()
	}
	return total
}

// ChangeSet folds the ordered form back into a map, normalizing every table
// to carry all three arrays. The remote push contract requires the arrays to
// be present even when empty.
func (oc OrderedChanges) ChangeSet() ChangeSet {
	cs := make(ChangeSet, len(oc))
	for _, e := range oc {
		tc := e.Changes
		if tc.Created == nil {
			tc.Created = []Record{}
		}
		if tc.Updated == nil {
			tc.Updated = []Record{}
		}
		if tc.Deleted == nil {
			tc.Deleted = []string{}
		}
		cs[e.Table] = tc
	}
	return cs
}

// OpKind identifies which of the three change arrays an operation belongs to.
type OpKind string

const (
	OpCreated OpKind = "created"
	OpUpdated OpKind = "updated"
	OpDeleted OpKind = "deleted"
)

// Checkpoint is the millisecond timestamp of the last successfully applied
// pull. Zero means the client has never synced.
type Checkpoint int64

// MigrationDescriptor carries schema-migration metadata to the remote pull
// endpoint so the server can backfill columns and tables the client gained
// since it last pulled.
type MigrationDescriptor struct {
	FromVersion  int                 `json:"from"`
	ToVersion    int                 `json:"to"`
	NewTables    []string            `json:"tables"`
	AddedColumns map[string][]string `json:"columns"`
}

// IsZero reports whether no migration occurred since the last pull.
func (m MigrationDescriptor) IsZero() bool {
	return m.FromVersion == m.ToVersion && len(m.NewTables) == 0 && len(m.AddedColumns) == 0
}

// PullResult is the outcome of one remote pull.
type PullResult struct {
	Changes   ChangeSet  `json:"changes"`
	Timestamp Checkpoint `json:"timestamp"`
	// Messages are server-embedded diagnostics on an otherwise successful
	// pull. They are surfaced to the user and do not affect the checkpoint.
	Messages []string `json:"messages,omitempty"`
}

// UnmarshalJSON keeps a nil Changes map from slipping through when the server
// sends "changes": null.
func (p *PullResult) UnmarshalJSON(data []byte) error {
	type alias PullResult
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Changes == nil {
		a.Changes = ChangeSet{}
	}
	*p = PullResult(a)
	return nil
}
