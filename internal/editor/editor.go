// Package editor owns the edit sessions of every collection and the save
// flow that keeps ids unique and reports what a change leaves dangling.
//
// Locks are always taken editor first, store second. The store never calls
// back into the editor; reloads go through Refresh, Reload or SwitchProject so
// open drafts are discarded in the same step.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/internal/refgraph"
	"github.com/pitabwire/cardforge/internal/schema"
	"github.com/pitabwire/cardforge/internal/store"
	"github.com/pitabwire/cardforge/model"
)

var (
	// ErrNoSession is returned when a collection has no session in the
	// required state.
	ErrNoSession = errors.New("no edit session")
	// ErrDuplicateID is returned when a save would give two entities one id.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidID is returned for empty ids.
	ErrInvalidID = errors.New("invalid id")
	// ErrNotFound is returned for ids that do not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrNotEditable is returned for collections that cannot be edited on
	// their own.
	ErrNotEditable = errors.New("collection is not editable")
	// ErrInvalidTransition is returned when a session cannot move to the
	// requested state.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// DuplicateIDError names the colliding id.
type DuplicateIDError struct {
	Collection model.Collection
	Field      string
	ID         string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: %s %q already exists", e.Collection, e.Field, e.ID)
}

// Is matches ErrDuplicateID.
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// Publisher receives editor notifications.
type Publisher interface {
	Publish(model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

// Context is the editing state of one collection. Collections never share a
// draft or a selection.
type Context struct {
	Collection model.Collection
	session    *Session
}

// Option configures an Editor.
type Option func(*Editor)

// WithLogger sets the editor logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Editor) { e.logger = l }
}

// WithPublisher sets where events are published.
func WithPublisher(p Publisher) Option {
	return func(e *Editor) { e.events = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

// Editor coordinates edit sessions over one store.
type Editor struct {
	mu       sync.Mutex
	store    *store.Store
	registry *schema.Registry
	logger   *zap.Logger
	events   Publisher
	now      func() time.Time

	contexts     map[model.Collection]*Context
	graph        *refgraph.Graph
	graphVersion uint64
}

// New creates an Editor over s. registry may be nil.
func New(s *store.Store, registry *schema.Registry, opts ...Option) *Editor {
	e := &Editor{
		store:    s,
		registry: registry,
		logger:   zap.NewNop(),
		events:   nopPublisher{},
		now:      time.Now,
		contexts: make(map[model.Collection]*Context),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, c := range model.Collections() {
		e.contexts[c] = &Context{Collection: c}
	}
	return e
}

// Store returns the underlying store.
func (e *Editor) Store() *store.Store {
	return e.store
}

// Registry returns the effect registry.
func (e *Editor) Registry() *schema.Registry {
	return e.registry
}

// Graph returns the reference graph of the current documents.
func (e *Editor) Graph() *refgraph.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graphLocked()
}

func (e *Editor) graphLocked() *refgraph.Graph {
	if v := e.store.Version(); e.graph == nil || e.graphVersion != v {
		e.graph = refgraph.Build(e.store.Documents(), e.registry)
		e.graphVersion = v
	}
	return e.graph
}

func (e *Editor) lookup(c model.Collection) (*Context, model.CollectionInfo, error) {
	ctx, ok := e.contexts[c]
	if !ok {
		if c == model.Chapters {
			return nil, model.CollectionInfo{}, fmt.Errorf("%w: chapters are edited through their region", ErrNotEditable)
		}
		return nil, model.CollectionInfo{}, fmt.Errorf("%w: %s", store.ErrUnknownCollection, c)
	}
	info, _ := model.Info(c)
	return ctx, info, nil
}

func (e *Editor) publish(ev model.Event) {
	ev.ID = uuid.NewString()
	ev.At = e.now().UTC()
	e.events.Publish(ev)
}

// Session returns the current session of c, in whatever state it ended.
func (e *Editor) Session(c model.Collection) (View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, ok := e.contexts[c]
	if !ok || ctx.session == nil {
		return View{}, false
	}
	return ctx.session.view(), true
}

// Sessions returns every session that holds an unsaved draft.
func (e *Editor) Sessions() []View {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []View
	for _, c := range model.Collections() {
		if s := e.contexts[c].session; s != nil && s.Editing() {
			out = append(out, s.view())
		}
	}
	return out
}

// Begin selects an entity for editing. An edit already open on another
// entity of the same collection is autosaved first; if that save fails the
// previous session stays open and the error is returned.
func (e *Editor) Begin(ctx context.Context, c model.Collection, id string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beginLocked(ctx, c, id)
}

func (e *Editor) beginLocked(ctx context.Context, c model.Collection, id string) (View, error) {
	cc, info, err := e.lookup(c)
	if err != nil {
		return View{}, err
	}
	doc, ok := e.store.Document(c)
	if !ok {
		return View{}, e.notLoaded(c)
	}
	rec, _ := doc.Find(info.IDField, id)
	if rec == nil {
		return View{}, fmt.Errorf("%w: %s %q", ErrNotFound, c, id)
	}

	if cur := cc.session; cur != nil && cur.Editing() {
		if cur.OriginalID == id {
			return cur.view(), nil
		}
		if _, err := e.saveLocked(ctx, cur, eventAutosave); err != nil {
			return View{}, fmt.Errorf("autosave %s %q: %w", c, cur.OriginalID, err)
		}
	}

	s := newSession(uuid.NewString(), c, e.logger)
	s.OriginalID = id
	s.Draft = rec.Clone()
	s.StartedAt = e.now()
	s.UpdatedAt = s.StartedAt
	if err := s.fire(ctx, eventBegin); err != nil {
		return View{}, err
	}
	cc.session = s
	e.logger.Info("edit session started",
		zap.String("session_id", s.ID),
		zap.String("collection", string(c)),
		zap.String("entity_id", id),
	)
	return s.view(), nil
}

func (e *Editor) editing(c model.Collection) (*Session, error) {
	cc, _, err := e.lookup(c)
	if err != nil {
		return nil, err
	}
	if cc.session == nil || !cc.session.Editing() {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, c)
	}
	return cc.session, nil
}

// Update replaces the draft of the open session of c.
func (e *Editor) Update(c model.Collection, draft model.Record) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.editing(c)
	if err != nil {
		return View{}, err
	}
	if draft == nil {
		return View{}, fmt.Errorf("%w: draft is empty", ErrInvalidID)
	}
	s.Draft = draft.Clone()
	s.UpdatedAt = e.now()
	return s.view(), nil
}

// Save persists the draft of the open session of c. A rejected save leaves
// the session open with its draft intact.
func (e *Editor) Save(ctx context.Context, c model.Collection) (SaveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.editing(c)
	if err != nil {
		return SaveResult{}, err
	}
	return e.saveLocked(ctx, s, eventSave)
}

// AutoSave persists the draft of the open session of c the way switching
// selection does.
func (e *Editor) AutoSave(ctx context.Context, c model.Collection) (SaveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.editing(c)
	if err != nil {
		return SaveResult{}, err
	}
	return e.saveLocked(ctx, s, eventAutosave)
}

// Cancel throws away the draft of the open session of c.
func (e *Editor) Cancel(ctx context.Context, c model.Collection) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.editing(c)
	if err != nil {
		return View{}, err
	}
	if err := s.fire(ctx, eventCancel); err != nil {
		return View{}, err
	}
	s.Draft = nil
	s.UpdatedAt = e.now()
	e.logger.Info("edit session cancelled",
		zap.String("session_id", s.ID),
		zap.String("collection", string(c)),
		zap.String("entity_id", s.OriginalID),
	)
	return s.view(), nil
}

func (e *Editor) saveLocked(ctx context.Context, s *Session, event string) (SaveResult, error) {
	res, err := e.persistLocked(ctx, s.Collection, s.Draft, s.OriginalID)
	if err != nil {
		return SaveResult{}, err
	}
	if err := s.fire(ctx, event); err != nil {
		return SaveResult{}, err
	}
	s.OriginalID = res.ID
	s.Draft = res.Record.Clone()
	s.UpdatedAt = e.now()
	view := s.view()
	res.Session = &view
	return res, nil
}

func (e *Editor) notLoaded(c model.Collection) error {
	if lerr := e.store.LoadError(c); lerr != nil {
		return fmt.Errorf("%w: %s: %v", store.ErrNotLoaded, c, lerr)
	}
	return fmt.Errorf("%w: %s", store.ErrNotLoaded, c)
}
