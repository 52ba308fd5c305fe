package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/model"
)

// Session states.
const (
	StateUnselected = "unselected"
	StateEditing    = "editing"
	StateSaved      = "saved"
	StateCancelled  = "cancelled"
	StateAutosaved  = "autosaved"
)

// Session transitions.
const (
	eventBegin    = "begin"
	eventSave     = "save"
	eventCancel   = "cancel"
	eventAutosave = "autosave"
)

var sessionEvents = fsm.Events{
	{Name: eventBegin, Src: []string{StateUnselected, StateSaved, StateCancelled, StateAutosaved}, Dst: StateEditing},
	{Name: eventSave, Src: []string{StateEditing}, Dst: StateSaved},
	{Name: eventCancel, Src: []string{StateEditing}, Dst: StateCancelled},
	{Name: eventAutosave, Src: []string{StateEditing}, Dst: StateAutosaved},
}

// Session is one edit of one entity. The draft is private to the session
// until it is saved.
type Session struct {
	ID         string
	Collection model.Collection
	OriginalID string
	Draft      model.Record
	StartedAt  time.Time
	UpdatedAt  time.Time

	machine *fsm.FSM
}

func newSession(id string, c model.Collection, logger *zap.Logger) *Session {
	s := &Session{ID: id, Collection: c}
	s.machine = fsm.NewFSM(StateUnselected, sessionEvents, fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			logger.Debug("edit session transition",
				zap.String("session_id", s.ID),
				zap.String("collection", string(s.Collection)),
				zap.String("entity_id", s.OriginalID),
				zap.String("from", e.Src),
				zap.String("to", e.Dst),
			)
		},
	})
	return s
}

// State returns the lifecycle state.
func (s *Session) State() string {
	return s.machine.Current()
}

// Editing reports whether the session holds an unsaved draft.
func (s *Session) Editing() bool {
	return s.machine.Current() == StateEditing
}

func (s *Session) fire(ctx context.Context, event string) error {
	if err := s.machine.Event(ctx, event); err != nil {
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return fmt.Errorf("%w: cannot %s a session that is %s", ErrInvalidTransition, event, s.State())
		}
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return nil
}

// View is the serializable form of a Session.
type View struct {
	ID         string           `json:"id"`
	Collection model.Collection `json:"collection"`
	OriginalID string           `json:"original_id"`
	State      string           `json:"state"`
	Draft      model.Record     `json:"draft,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (s *Session) view() View {
	v := View{
		ID:         s.ID,
		Collection: s.Collection,
		OriginalID: s.OriginalID,
		State:      s.State(),
		StartedAt:  s.StartedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.Draft != nil {
		v.Draft = s.Draft.Clone()
	}
	return v
}
