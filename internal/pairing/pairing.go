// Package pairing matches current snapshots to a previous manifest's
// snapshots by root-input equality.
package pairing

import "github.com/desertwitch/flashbackup/internal/snapshot"

// Pair links the index of a current snapshot to the index of the previous
// snapshot it was matched against.
type Pair struct {
	CurrentIndex  int
	PreviousIndex int
}

// Match pairs each current snapshot to the first previous snapshot sharing
// its RootInput. Matching is one-to-one in current; in previous, the first
// matching index wins (a previous snapshot may be referenced by at most one
// pair, decided by current's iteration order). Returns the matched pairs and
// the indices of current snapshots that found no previous counterpart.
func Match(current, previous []*snapshot.DirSnapshot) (matched []Pair, unmatchedCurrent []int) {
	used := make(map[int]bool, len(previous))

	for i, cur := range current {
		found := false

		for j, prev := range previous {
			if used[j] {
				continue
			}

			if cur.RootInput == prev.RootInput {
				matched = append(matched, Pair{CurrentIndex: i, PreviousIndex: j})
				used[j] = true
				found = true

				break
			}
		}

		if !found {
			unmatchedCurrent = append(unmatchedCurrent, i)
		}
	}

	return matched, unmatchedCurrent
}

// UnmatchedPrevious returns the indices of previous snapshots that were not
// claimed by any pair in matched, out of nPrevious total.
func UnmatchedPrevious(matched []Pair, nPrevious int) []int {
	used := make(map[int]bool, len(matched))
	for _, p := range matched {
		used[p.PreviousIndex] = true
	}

	var unmatched []int

	for j := range nPrevious {
		if !used[j] {
			unmatched = append(unmatched, j)
		}
	}

	return unmatched
}
