package report

// Change is a status difference for one entry between two runs. An empty
// Before or After means the entry was absent from that run.
type Change struct {
	Key    string
	Before Status
	After  Status
}

// Diff lists entries whose status differs between prev and cur. Entries are
// matched by section and version. Changes come in cur order, followed by
// entries only present in prev.
func Diff(prev, cur *Report) []Change {
	before := make(map[string]Status, len(prev.outcomes))
	for _, o := range prev.outcomes {
		before[o.Entry.Key()] = o.Status
	}

	var changes []Change
	seen := make(map[string]bool, len(cur.outcomes))
	for _, o := range cur.outcomes {
		key := o.Entry.Key()
		seen[key] = true
		if b, ok := before[key]; !ok || b != o.Status {
			changes = append(changes, Change{Key: key, Before: b, After: o.Status})
		}
	}

	for _, o := range prev.outcomes {
		key := o.Entry.Key()
		if !seen[key] {
			changes = append(changes, Change{Key: key, Before: o.Status})
		}
	}

	return changes
}
