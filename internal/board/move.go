// Package board holds the client-side view of a sprint board: the drag
// reducer that turns a gesture into a dense reorder payload, the filtered
// column projection and an optimistic session around the reorder call.
package board

import (
	"errors"
	"fmt"
	"sort"

	"sprintboard/internal/domain"
)

var (
	// ErrNoop reports a cancelled drag or one that drops an issue where it was.
	ErrNoop             = errors.New("no move")
	ErrSprintNotStarted = domain.TransitionError{Reason: "start the sprint to update board"}
	ErrSprintEnded      = domain.TransitionError{Reason: "cannot update board after sprint end"}
	ErrInvalidPosition  = fmt.Errorf("%w: position out of range", domain.ErrInvalidArgument)
)

// Position addresses a slot in one column. Index counts every issue of the
// column in order, regardless of any active filter.
type Position struct {
	Status string `json:"status"`
	Index  int    `json:"index"`
}

// Move applies a drag from source to dest over the full issue set of one
// sprint. It returns the new issue list sorted by order and the payload to
// send to the reorder call, covering every issue. The input is not modified.
// A nil dest is a cancelled gesture.
func Move(issues []domain.Issue, sprintStatus string, source Position, dest *Position) ([]domain.Issue, []domain.IssueMove, error) {
	switch sprintStatus {
	case domain.SprintPlanned:
		return nil, nil, ErrSprintNotStarted
	case domain.SprintCompleted:
		return nil, nil, ErrSprintEnded
	}
	if dest == nil || *dest == source {
		return nil, nil, ErrNoop
	}
	if !domain.ValidIssueStatus(source.Status) || !domain.ValidIssueStatus(dest.Status) {
		return nil, nil, fmt.Errorf("%w: unknown column", domain.ErrInvalidArgument)
	}

	next := make([]domain.Issue, len(issues))
	copy(next, issues)
	src := bucket(next, source.Status)
	if source.Index < 0 || source.Index >= len(src) {
		return nil, nil, ErrInvalidPosition
	}

	if source.Status == dest.Status {
		moved := src[source.Index]
		src = append(src[:source.Index:source.Index], src[source.Index+1:]...)
		src = insertAt(src, clamp(dest.Index, len(src)), moved)
		renumber(next, src)
	} else {
		moved := src[source.Index]
		src = append(src[:source.Index:source.Index], src[source.Index+1:]...)
		renumber(next, src)
		next[moved].Status = dest.Status
		dst := bucket(next, dest.Status)
		dst = removeIndex(dst, moved)
		dst = insertAt(dst, clamp(dest.Index, len(dst)), moved)
		renumber(next, dst)
	}

	sort.SliceStable(next, func(i, j int) bool { return next[i].Order < next[j].Order })
	moves := make([]domain.IssueMove, len(next))
	for i, it := range next {
		moves[i] = domain.IssueMove{IssueID: it.ID, Status: it.Status, Order: it.Order}
	}
	return next, moves, nil
}

// bucket returns the indexes into issues of one column, in board order.
func bucket(issues []domain.Issue, status string) []int {
	var idx []int
	for i, it := range issues {
		if it.Status == status {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		x, y := issues[idx[a]], issues[idx[b]]
		if x.Order != y.Order {
			return x.Order < y.Order
		}
		return x.ID < y.ID
	})
	return idx
}

func renumber(issues []domain.Issue, idx []int) {
	for pos, i := range idx {
		issues[i].Order = pos
	}
}

func insertAt(idx []int, at, v int) []int {
	idx = append(idx, 0)
	copy(idx[at+1:], idx[at:])
	idx[at] = v
	return idx
}

func removeIndex(idx []int, v int) []int {
	out := idx[:0:0]
	for _, i := range idx {
		if i != v {
			out = append(out, i)
		}
	}
	return out
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
