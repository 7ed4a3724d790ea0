package lifecycle

import (
	"time"

	"github.com/pkg/errors"

	"github.com/wren-mail/wren/internal/compose"
)

// State tags a draft's position in its lifecycle. Sent is terminal.
type State int

const (
	StateComposing State = iota
	StateSaved
	StateQueued
	StateSent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateSaved:
		return "saved"
	case StateQueued:
		return "queued"
	case StateSent:
		return "sent"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrIllegalTransition is returned for an operation not legal from the
// draft's current state.
var ErrIllegalTransition = errors.New("illegal state transition")

// legal lists the reachable states from each state. Sent has no exits.
var legal = map[State][]State{
	StateComposing: {StateSaved},
	StateSaved:     {StateComposing, StateQueued, StateSent, StateFailed},
	StateQueued:    {StateSent, StateFailed},
	StateFailed:    {StateComposing},
}

func canTransition(from, to State) bool {
	for _, next := range legal[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Draft couples the editable draft content with its lifecycle state.
// Only the engine changes the state tag or the backing file.
type Draft struct {
	*compose.Draft

	// Path is the persisted draft file; empty while the draft has
	// never been saved.
	Path string

	state  State
	reason string
	sentAt time.Time
}

// State returns the draft's current lifecycle state.
func (d *Draft) State() State { return d.state }

// FailureReason returns the recorded transport failure, if any.
func (d *Draft) FailureReason() string { return d.reason }

// SentAt returns the successful transport timestamp, zero otherwise.
func (d *Draft) SentAt() time.Time { return d.sentAt }

func (d *Draft) transition(to State) error {
	if d.state == to && (to == StateSaved || to == StateComposing) {
		return nil // idempotent re-save / re-edit
	}
	if !canTransition(d.state, to) {
		return errors.Wrapf(ErrIllegalTransition, "%s to %s", d.state, to)
	}
	d.state = to
	return nil
}
