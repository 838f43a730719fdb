package sync

// BatchThreshold is the maximum total item count carried by one push request.
const BatchThreshold = 50

// Operation is one contiguous run of same-kind items for one table inside a
// push batch. Created and Updated carry records; Deleted carries ids.
type Operation struct {
	Table   string
	Kind    OpKind
	Records []Record // created/updated
	IDs     []string // deleted
}

// Len returns the operation's item count.
func (o Operation) Len() int {
	if o.Kind == OpDeleted {
		return len(o.IDs)
	}
	return len(o.Records)
}

// PushBatch is an ordered sequence of operations whose total item count never
// exceeds BatchThreshold.
type PushBatch []Operation

// Count returns the batch's total item count.
func (b PushBatch) Count() int {
	total := 0
	for _, op := range b {
		total += op.Len()
	}
	return total
}

// ChangeSet folds a batch back into the wire shape, normalizing every table
// to carry all three arrays.
func (b PushBatch) ChangeSet() ChangeSet {
	cs := make(ChangeSet)
	for _, op := range b {
		tc, ok := cs[op.Table]
		if !ok {
			tc = TableChanges{Created: []Record{}, Updated: []Record{}, Deleted: []string{}}
		}
		switch op.Kind {
		case OpCreated:
			tc.Created = append(tc.Created, op.Records...)
		case OpUpdated:
			tc.Updated = append(tc.Updated, op.Records...)
		case OpDeleted:
			tc.Deleted = append(tc.Deleted, op.IDs...)
		}
		cs[op.Table] = tc
	}
	return cs
}

// flatten expands ordered changes into operations in encounter order:
// created, then updated, then deleted per table. Empty runs are skipped.
func flatten(oc OrderedChanges) []Operation {
	var ops []Operation
	for _, e := range oc {
		if len(e.Changes.Created) > 0 {
			ops = append(ops, Operation{Table: e.Table, Kind: OpCreated, Records: e.Changes.Created})
		}
		if len(e.Changes.Updated) > 0 {
			ops = append(ops, Operation{Table: e.Table, Kind: OpUpdated, Records: e.Changes.Updated})
		}
		if len(e.Changes.Deleted) > 0 {
			ops = append(ops, Operation{Table: e.Table, Kind: OpDeleted, IDs: e.Changes.Deleted})
		}
	}
	return ops
}

// SplitBatches packs ordered changes into push batches of at most threshold
// items each. Packing is greedy: when an operation does not fit, the slice
// that fits completes the current batch and the remainder of the same
// operation continues into the next one, so a single large operation may span
// several batches. Consecutive slices with the same table and kind are merged
// into one operation within a batch.
//
// A changeset whose total fits in one batch yields exactly one batch equal to
// the normalized input.
func SplitBatches(oc OrderedChanges, threshold int) []PushBatch {
	if threshold <= 0 {
		threshold = BatchThreshold
	}
	if oc.Count() == 0 {
		return nil
	}

	var batches []PushBatch
	var current PushBatch
	room := threshold

	appendOp := func(op Operation) {
		// Consecutive slices of the same table+kind merge into one
		// operation instead of appearing twice in a batch.
		if n := len(current); n > 0 && current[n-1].Table == op.Table && current[n-1].Kind == op.Kind {
			if op.Kind == OpDeleted {
				current[n-1].IDs = append(current[n-1].IDs, op.IDs...)
			} else {
				current[n-1].Records = append(current[n-1].Records, op.Records...)
			}
			return
		}
		current = append(current, op)
	}

	for _, op := range flatten(oc) {
		remaining := op
		for remaining.Len() > 0 {
			if room == 0 {
				batches = append(batches, current)
				current = nil
				room = threshold
			}
			take := remaining.Len()
			if take > room {
				take = room
			}
			slice := Operation{Table: remaining.Table, Kind: remaining.Kind}
			if remaining.Kind == OpDeleted {
				slice.IDs = remaining.IDs[:take:take]
				remaining.IDs = remaining.IDs[take:]
			} else {
				slice.Records = remaining.Records[:take:take]
				remaining.Records = remaining.Records[take:]
			}
			appendOp(slice)
			room -= take
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
