// Package store holds the in-memory content collections, persists them one
// document at a time and detects changes made to the files by other tools.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/pitabwire/cardforge/model"
)

const tracerName = "github.com/pitabwire/cardforge/internal/store"

var (
	// ErrMissingFile is wrapped by load errors for absent required files.
	ErrMissingFile = errors.New("missing file")
	// ErrMalformedDocument is wrapped by load errors for unparsable files.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrPersist matches every *PersistError.
	ErrPersist = errors.New("persist failure")
	// ErrNotLoaded is returned when saving a collection whose last load failed.
	ErrNotLoaded = errors.New("collection not loaded")
	// ErrUnknownCollection is returned for names outside the catalog.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrReadOnly is returned by saves on a read-only store.
	ErrReadOnly = errors.New("store is read-only")
)

// LoadError reports why one collection could not be loaded.
type LoadError struct {
	Collection model.Collection
	Path       string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// PersistError reports a failed document write. The cause is kept verbatim.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPersist) true for every PersistError.
func (e *PersistError) Is(target error) bool {
	return target == ErrPersist
}

// Snapshot maps each collection path to its last modification time. A zero
// time means the file did not exist.
type Snapshot map[string]time.Time

// Clone returns a copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// HasExternalChange reports whether current differs from old. An empty old
// snapshot means nothing was known yet and never counts as a change.
func HasExternalChange(old, current Snapshot) bool {
	return len(old) > 0 && len(ChangedPaths(old, current)) > 0
}

// ChangedPaths returns the sorted paths whose stamp differs between old and
// current, including paths present in only one of them.
func ChangedPaths(old, current Snapshot) []string {
	var out []string
	for path, then := range old {
		now, ok := current[path]
		if !ok || !now.Equal(then) {
			out = append(out, path)
		}
	}
	for path := range current {
		if _, ok := old[path]; !ok {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// state is an immutable view of the store. Every mutation installs a new one.
type state struct {
	docs    model.Documents
	errors  map[model.Collection]*LoadError
	stamps  Snapshot
	version uint64
	// generation counts full loads.
	generation uint64
	loadedAt   time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithReadOnly makes every save fail with ErrReadOnly.
func WithReadOnly(readOnly bool) Option {
	return func(s *Store) { s.readOnly = readOnly }
}

// Store holds every collection of one project. Reads are lock-free against
// the current state; loads, saves and change checks are serialized.
type Store struct {
	mu       sync.Mutex
	fsys     FS
	cur      atomic.Pointer[state]
	logger   *zap.Logger
	readOnly bool
}

// New returns an empty store reading from fsys. Call LoadAll before use.
func New(fsys FS, opts ...Option) *Store {
	s := &Store{fsys: fsys, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.cur.Store(&state{
		docs:   make(model.Documents),
		errors: make(map[model.Collection]*LoadError),
		stamps: make(Snapshot),
	})
	return s
}

func (s *Store) current() *state {
	return s.cur.Load()
}

// Location describes where the project lives.
func (s *Store) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsys.Location()
}

// ReadOnly reports whether saves are refused.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// LoadAll reads every collection and replaces the in-memory state in one
// step. Collections that fail are absent from the result and reported in the
// returned errors; the others load normally.
func (s *Store) LoadAll(ctx context.Context) (model.Documents, []*LoadError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.loadLocked(ctx)
	return st.docs, sortedErrors(st.errors)
}

// SwitchFS points the store at another project and loads it.
func (s *Store) SwitchFS(ctx context.Context, fsys FS) (model.Documents, []*LoadError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev := s.fsys; prev != fsys {
		if err := closeFS(prev); err != nil {
			s.logger.Warn("closing previous project failed", zap.String("location", prev.Location()), zap.Error(err))
		}
	}
	s.fsys = fsys
	st := s.loadLocked(ctx)
	return st.docs, sortedErrors(st.errors)
}

// Close releases the project filesystem.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeFS(s.fsys)
}

func (s *Store) loadLocked(ctx context.Context) *state {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "store.load")
	defer span.End()

	prev := s.current()
	st := &state{
		docs:       make(model.Documents),
		errors:     make(map[model.Collection]*LoadError),
		stamps:     make(Snapshot),
		version:    prev.version + 1,
		generation: prev.generation + 1,
		loadedAt:   time.Now(),
	}

	for _, info := range model.Catalog() {
		mtime, err := s.fsys.ModTime(ctx, info.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("stat failed", zap.String("path", info.Path), zap.Error(err))
		}
		st.stamps[info.Path] = mtime

		doc, lerr := s.readCollection(ctx, info)
		if lerr != nil {
			st.errors[info.Name] = lerr
			s.logger.Warn("collection load failed",
				zap.String("collection", string(info.Name)),
				zap.String("path", info.Path),
				zap.Error(lerr.Err),
			)
			continue
		}
		st.docs[info.Name] = doc
	}

	span.SetAttributes(
		attribute.Int("store.collections_loaded", len(st.docs)),
		attribute.Int("store.collections_failed", len(st.errors)),
	)
	if len(st.errors) > 0 {
		span.SetStatus(codes.Error, "one or more collections failed to load")
	}

	s.cur.Store(st)
	s.logger.Info("collections loaded",
		zap.String("location", s.fsys.Location()),
		zap.Int("loaded", len(st.docs)),
		zap.Int("failed", len(st.errors)),
	)
	return st
}

func (s *Store) readCollection(ctx context.Context, info model.CollectionInfo) (*model.Document, *LoadError) {
	data, err := s.fsys.ReadFile(ctx, info.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if info.Required {
			return nil, &LoadError{Collection: info.Name, Path: info.Path, Err: ErrMissingFile}
		}
		return model.NewDocument(info.Name), nil
	case err != nil:
		return nil, &LoadError{Collection: info.Name, Path: info.Path, Err: err}
	}

	doc, err := Decode(info, data)
	if err != nil {
		return nil, &LoadError{
			Collection: info.Name,
			Path:       info.Path,
			Err:        fmt.Errorf("%w: %v", ErrMalformedDocument, err),
		}
	}
	return doc, nil
}

// Documents returns the loaded collections. The result is shared and must be
// treated as read-only; clone a document before changing it.
func (s *Store) Documents() model.Documents {
	return s.current().docs
}

// Document returns one loaded collection.
func (s *Store) Document(c model.Collection) (*model.Document, bool) {
	d, ok := s.current().docs[c]
	return d, ok
}

// LoadErrors returns the failures of the last load, ordered by path.
func (s *Store) LoadErrors() []*LoadError {
	return sortedErrors(s.current().errors)
}

// LoadError returns the last load failure of c, or nil.
func (s *Store) LoadError(c model.Collection) *LoadError {
	return s.current().errors[c]
}

// Version increases with every load and save.
func (s *Store) Version() uint64 {
	return s.current().version
}

// Generation increases with every full load.
func (s *Store) Generation() uint64 {
	return s.current().generation
}

// LoadedAt returns the time of the last full load.
func (s *Store) LoadedAt() time.Time {
	return s.current().loadedAt
}

// Known returns the modification times recorded by the last load or save.
func (s *Store) Known() Snapshot {
	return s.current().stamps.Clone()
}

// Snapshot stats every collection file now.
func (s *Store) Snapshot(ctx context.Context) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(ctx)
}

func (s *Store) snapshotLocked(ctx context.Context) Snapshot {
	snap := make(Snapshot)
	for _, info := range model.Catalog() {
		mtime, _ := s.fsys.ModTime(ctx, info.Path)
		snap[info.Path] = mtime
	}
	return snap
}

// Save replaces the records of c and writes that collection's document. The
// in-memory state and the recorded modification time change only after the
// write succeeded, so a store never re-detects its own write.
func (s *Store) Save(ctx context.Context, c model.Collection, records []model.Record) error {
	info, ok := model.Info(c)
	if !ok || info.Path == "" {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, c)
	}
	if s.readOnly {
		return ErrReadOnly
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "store.save")
	span.SetAttributes(attribute.String("store.collection", string(c)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current()
	if lerr := prev.errors[c]; lerr != nil {
		err := fmt.Errorf("%w: %s: %v", ErrNotLoaded, c, lerr)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	doc := &model.Document{Collection: c, Records: make([]model.Record, len(records))}
	for i, r := range records {
		doc.Records[i] = r.Clone()
	}
	if old := prev.docs[c]; old != nil {
		if old.Extra != nil {
			doc.Extra = model.CloneValue(old.Extra).(map[string]any)
		}
		doc.WrapperAbsent = old.WrapperAbsent && len(records) == 0
	}

	data, err := Encode(info, doc)
	if err != nil {
		err = &PersistError{Path: info.Path, Err: err}
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.fsys.WriteFile(ctx, info.Path, data); err != nil {
		perr := &PersistError{Path: info.Path, Err: err}
		span.SetStatus(codes.Error, perr.Error())
		s.logger.Error("document write failed", zap.String("path", info.Path), zap.Error(err))
		return perr
	}

	mtime, err := s.fsys.ModTime(ctx, info.Path)
	if err != nil {
		s.logger.Warn("stat after write failed", zap.String("path", info.Path), zap.Error(err))
	}

	next := &state{
		docs:       make(model.Documents, len(prev.docs)+1),
		errors:     prev.errors,
		stamps:     prev.stamps.Clone(),
		version:    prev.version + 1,
		generation: prev.generation,
		loadedAt:   prev.loadedAt,
	}
	for k, v := range prev.docs {
		next.docs[k] = v
	}
	next.docs[c] = doc
	next.stamps[info.Path] = mtime
	s.cur.Store(next)

	s.logger.Info("collection saved",
		zap.String("collection", string(c)),
		zap.String("path", info.Path),
		zap.Int("records", len(doc.Records)),
	)
	return nil
}

// CheckExternalChange stats every file and, when anything changed since the
// last load or save, reloads every collection. It returns the changed paths;
// reloaded is true when a reload happened.
func (s *Store) CheckExternalChange(ctx context.Context) (changed []string, reloaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := s.current().stamps
	now := s.snapshotLocked(ctx)
	if !HasExternalChange(known, now) {
		return nil, false
	}
	changed = ChangedPaths(known, now)
	s.logger.Info("external change detected", zap.Strings("paths", changed))
	s.loadLocked(ctx)
	return changed, true
}

func sortedErrors(m map[model.Collection]*LoadError) []*LoadError {
	out := make([]*LoadError, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// HealthCheck verifies that every required collection file is still
// reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	fsys := s.fsys
	s.mu.Unlock()

	var missing []string
	for _, info := range model.Catalog() {
		if !info.Required {
			continue
		}
		if _, err := fsys.ModTime(ctx, info.Path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, info.Path)
				continue
			}
			return fmt.Errorf("stat %s: %w", info.Path, err)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFile, strings.Join(missing, ", "))
	}
	return nil
}

// RequiredLoaded returns an error naming every required collection that is
// not loaded.
func (s *Store) RequiredLoaded() error {
	st := s.current()
	var failed []string
	for _, info := range model.Catalog() {
		if _, ok := st.docs[info.Name]; !ok && info.Required {
			failed = append(failed, string(info.Name))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrNotLoaded, strings.Join(failed, ", "))
	}
	return nil
}
