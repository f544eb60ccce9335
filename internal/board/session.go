package board

import (
	"context"
	"errors"
	"sync"

	"sprintboard/internal/domain"
)

// ErrBusy rejects a drag while the previous one is still being written.
var ErrBusy = errors.New("a board update is already in flight")

// Reorderer persists a reorder payload.
type Reorderer interface {
	Reorder(ctx context.Context, moves []domain.IssueMove) error
}

// ReordererFunc adapts a function to Reorderer.
type ReordererFunc func(ctx context.Context, moves []domain.IssueMove) error

func (f ReordererFunc) Reorder(ctx context.Context, moves []domain.IssueMove) error {
	return f(ctx, moves)
}

// Session is one client's optimistic view of a sprint board. A drag is
// shown immediately and then written; a failed write leaves the optimistic
// state in place, marked unconfirmed, until the next Reload.
type Session struct {
	store Reorderer

	mu          sync.Mutex
	sprint      domain.Sprint
	issues      []domain.Issue
	inFlight    bool
	unconfirmed bool
	lastErr     error
}

func NewSession(store Reorderer, sprint domain.Sprint, issues []domain.Issue) *Session {
	s := &Session{store: store}
	s.Reload(sprint, issues)
	return s
}

// Reload replaces the local state with a fresh read and clears any error.
func (s *Session) Reload(sprint domain.Sprint, issues []domain.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sprint = sprint
	s.issues = append([]domain.Issue(nil), issues...)
	s.unconfirmed = false
	s.lastErr = nil
}

// Drag runs the move locally, installs the result, then writes it.
// Guard and no-op errors leave the state untouched and make no write.
func (s *Session) Drag(ctx context.Context, source Position, dest *Position) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return ErrBusy
	}
	next, moves, err := Move(s.issues, s.sprint.Status, source, dest)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.issues = next
	s.inFlight = true
	s.mu.Unlock()

	err = s.store.Reorder(ctx, moves)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.unconfirmed = err != nil
	s.lastErr = err
	return err
}

// Issues returns a copy of the local issue list.
func (s *Session) Issues() []domain.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Issue(nil), s.issues...)
}

// Board projects the local state through f.
func (s *Session) Board(f Filter) Board {
	return Project(s.Issues(), f)
}

// Unconfirmed reports whether the local state failed to persist, and why.
func (s *Session) Unconfirmed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unconfirmed, s.lastErr
}
