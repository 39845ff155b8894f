package crdt

import (
	"sort"

	"quilt/packages/communication"
)

// MergeResult summarizes a merge
type MergeResult struct {
	Added      int    // remote operations appended to the local log
	Discarded  int    // duplicate insertions hidden from the resolved view of the merged log
	MaxCounter uint64 // highest counter in the merged log
}

// Merge folds a snapshot of a remote log into the local one.
//
// Remote operations whose id is not logged locally are appended and the log is sorted by
// id, which makes replay a function of the set of operations rather than of arrival order.
// Logged operations are never rewritten: identical insertions made concurrently on
// different replicas are collapsed in the log's resolved view (see Log.Resolved), which is
// recomputed from the whole set every time the set changes.
func Merge(local *Log, remote []communication.Operation) MergeResult {
	var res MergeResult
	for _, op := range remote {
		if local.Append(op) {
			res.Added++
		}
	}
	local.Sort()
	res.Discarded = local.Duplicates()
	res.MaxCounter, _ = local.MaxCounter()
	return res
}

type groupKey struct {
	content string
	after   communication.OpID
}

// deduplicate drops every insertion that is concurrent with an identical insertion of
// smaller id and returns copies of the remaining operations with references to the dropped
// ids redirected. Redirecting can make further insertions identical (the rest of a word
// typed twice), so it runs to a fixed point. The input is not modified, and the result
// depends only on the set of operations and their order.
func deduplicate(ops []communication.Operation) ([]communication.Operation, int) {
	discarded := 0
	for {
		groups := make(map[groupKey][]communication.Operation)
		for _, op := range ops {
			if ins, ok := op.Kind.(communication.Insert); ok {
				key := groupKey{content: ins.Content, after: op.After}
				groups[key] = append(groups[key], op)
			}
		}

		alias := make(map[communication.OpID]communication.OpID)
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			sort.Slice(group, func(i, j int) bool {
				return group[i].ID.Less(group[j].ID)
			})
			var kept []communication.Operation
			for _, op := range group {
				if survivor, ok := concurrentWith(kept, op); ok {
					alias[op.ID] = survivor
					continue
				}
				kept = append(kept, op)
			}
		}
		if len(alias) == 0 {
			return ops, discarded
		}
		discarded += len(alias)

		resolve := func(id communication.OpID) communication.OpID {
			if survivor, ok := alias[id]; ok {
				return survivor
			}
			return id
		}
		next := make([]communication.Operation, 0, len(ops)-len(alias))
		for _, op := range ops {
			if _, gone := alias[op.ID]; gone {
				continue
			}
			next = append(next, op.MapReferences(resolve))
		}
		ops = next
	}
}

// concurrentWith returns the first kept insertion that op is concurrent with
func concurrentWith(kept []communication.Operation, op communication.Operation) (communication.OpID, bool) {
	for _, k := range kept {
		if k.ID.Replica != op.ID.Replica && k.Concurrent(op) {
			return k.ID, true
		}
	}
	return communication.OpID{}, false
}
