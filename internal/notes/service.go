package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/debounce"
	"go.uber.org/zap"
)

var (
	errMissingPersister  = errors.New("persister is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "notes.service.new"
	opOpen        = "notes.open"
	opCreate      = "notes.create"
	opUpdate      = "notes.update"
	opApplyDraft  = "notes.apply_draft"
	opEdit        = "notes.edit"
	opCommitDraft = "notes.commit_draft"
	opDelete      = "notes.delete"
	opTogglePin   = "notes.toggle_pin"
	opSelect      = "notes.select"
	opGet         = "notes.get"
	opPersist     = "notes.persist"

	reasonNoteNotFound       = "note_not_found"
	reasonInvalidNoteID      = "invalid_note_id"
	reasonInvalidNote        = "invalid_note"
	reasonIDGenerationFailed = "id_generation_failed"
	reasonSaveFailed         = "save_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Persister stores and retrieves full snapshots of the note list.
type Persister interface {
	Load(ctx context.Context) []Note
	Save(ctx context.Context, notes []Note) error
}

type IDProvider interface {
	NewID() (NoteID, error)
}

// ChangeKind names the mutation that produced a Change.
type ChangeKind string

const (
	ChangeKindCreated ChangeKind = "created"
	ChangeKindUpdated ChangeKind = "updated"
	ChangeKindDeleted ChangeKind = "deleted"
	ChangeKindPinned  ChangeKind = "pinned"
)

// Change describes a persisted mutation of the collection.
type Change struct {
	Kind      ChangeKind
	NoteIDs   []NoteID
	Timestamp time.Time
}

type ServiceConfig struct {
	Persister  Persister
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	EditDelay  time.Duration
	OnChange   func(Change)
}

// Service owns the note collection for the lifetime of the process. It forwards
// edits to the collection after the debounce window and persists every change.
type Service struct {
	mu         sync.Mutex
	editMu     sync.Mutex
	persister  Persister
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	debouncer  *debounce.Debouncer
	onChange   func(Change)
	collection *Collection
	pending    *Draft
	pendingCtx context.Context
	// pendingSeq identifies the latest scheduled commit; older timers are no-ops.
	pendingSeq uint64
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Persister == nil {
		return nil, newServiceError(opServiceNew, "missing_persister", errMissingPersister)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		persister:  cfg.Persister,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		debouncer:  debounce.New(cfg.EditDelay),
		onChange:   cfg.OnChange,
		collection: NewCollection(nil),
	}, nil
}

// Open populates the collection from the persister and selects the first note of the unfiltered view.
func (s *Service) Open(ctx context.Context) {
	loaded := s.persister.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection = NewCollection(loaded)
	s.pending = nil
	s.pendingCtx = nil
	if view := s.collection.View(""); len(view) > 0 {
		_ = s.collection.Select(view[0].ID)
	}
	s.logger.Debug("notes loaded", zap.String("operation", opOpen), zap.Int("count", s.collection.Len()))
}

// Notes returns the collection in storage order.
func (s *Service) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Notes()
}

// View returns the filtered, sorted notes without changing the current filter.
func (s *Service) View(query string) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.View(query)
}

// Search records query as the current filter and returns the matching view.
func (s *Service) Search(query string) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection.SetFilter(query)
	return s.collection.View(query)
}

// Get returns a single note.
func (s *Service) Get(id NoteID) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.collection.Get(id)
	if !ok {
		return Note{}, newServiceError(opGet, reasonNoteNotFound, fmt.Errorf("%w: %s", ErrNoteNotFound, id))
	}
	return note, nil
}

// Active returns the active note, if any.
func (s *Service) Active() (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Active()
}

// Create inserts a new empty note at the front of the list and selects it.
func (s *Service) Create(ctx context.Context) (Note, error) {
	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, reasonIDGenerationFailed, err)
		return Note{}, newServiceError(opCreate, reasonIDGenerationFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	note, err := s.collection.Create(noteID, s.clock())
	if err != nil {
		s.logError(opCreate, reasonInvalidNoteID, err, zap.String("note_id", noteID.String()))
		return Note{}, newServiceError(opCreate, reasonInvalidNoteID, err)
	}
	s.persistLocked(ctx, ChangeKindCreated, note.ID)
	return note, nil
}

// Update replaces the stored note with the given value as is.
func (s *Service) Update(ctx context.Context, note Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Update(note); err != nil {
		return s.collectionError(opUpdate, note.ID, err)
	}
	s.dropPendingLocked(note.ID)
	s.persistLocked(ctx, ChangeKindUpdated, note.ID)
	return nil
}

// Apply commits a draft immediately, bypassing the debounce window.
func (s *Service) Apply(ctx context.Context, draft Draft) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropPendingLocked(draft.NoteID)
	note, changed, err := s.applyDraftLocked(draft)
	if err != nil {
		return Note{}, s.collectionError(opApplyDraft, draft.NoteID, err)
	}
	if changed {
		s.persistLocked(ctx, ChangeKindUpdated, note.ID)
	}
	return note, nil
}

// Edit records draft as the latest state of its note and commits it once no
// further edit arrives within the debounce window. A pending draft for a
// different note is committed first.
func (s *Service) Edit(ctx context.Context, draft Draft) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	s.mu.Lock()
	if _, ok := s.collection.Get(draft.NoteID); !ok {
		s.mu.Unlock()
		return s.collectionError(opEdit, draft.NoteID, fmt.Errorf("%w: %s", ErrNoteNotFound, draft.NoteID))
	}
	if s.pending != nil && s.pending.NoteID != draft.NoteID {
		s.commitPendingLocked()
	}
	pendingDraft := draft
	pendingDraft.Tags = append([]string{}, draft.Tags...)
	s.pending = &pendingDraft
	s.pendingCtx = context.WithoutCancel(ctx)
	s.pendingSeq++
	seq := s.pendingSeq
	s.mu.Unlock()

	if !s.debouncer.Schedule(func() { s.commitScheduled(seq) }) {
		s.mu.Lock()
		s.commitPendingLocked()
		s.mu.Unlock()
	}
	return nil
}

// Flush commits the pending draft now. It reports whether a draft was pending.
func (s *Service) Flush() bool {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	s.debouncer.Cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitPendingLocked()
}

// HasPendingEdit reports whether a draft is waiting for the debounce window.
func (s *Service) HasPendingEdit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Draft returns the latest editable state of the note: the pending draft when
// one is waiting for it, otherwise the committed fields.
func (s *Service) Draft(id NoteID) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, ok := s.collection.Get(id)
	if !ok {
		return Draft{}, s.collectionError(opGet, id, fmt.Errorf("%w: %s", ErrNoteNotFound, id))
	}
	if s.pending != nil && s.pending.NoteID == id {
		draft := *s.pending
		draft.Tags = append([]string{}, s.pending.Tags...)
		return draft, nil
	}
	return Draft{NoteID: note.ID, Title: note.Title, Content: note.Content, Tags: append([]string{}, note.Tags...)}, nil
}

// Delete removes the note permanently, dropping any pending draft for it.
func (s *Service) Delete(ctx context.Context, id NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Delete(id); err != nil {
		return s.collectionError(opDelete, id, err)
	}
	s.dropPendingLocked(id)
	s.persistLocked(ctx, ChangeKindDeleted, id)
	return nil
}

// TogglePin flips the pinned flag of the note.
func (s *Service) TogglePin(ctx context.Context, id NoteID) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	note, err := s.collection.TogglePin(id)
	if err != nil {
		return Note{}, s.collectionError(opTogglePin, id, err)
	}
	s.persistLocked(ctx, ChangeKindPinned, id)
	return note, nil
}

// Select makes the note active.
func (s *Service) Select(id NoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Select(id); err != nil {
		return s.collectionError(opSelect, id, err)
	}
	return nil
}

// Close commits any pending draft and stops accepting debounced edits.
func (s *Service) Close() {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	s.debouncer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitPendingLocked()
}

// commitScheduled runs when the debounce window of edit seq elapses. A timer
// that lost the race against a newer edit, a flush or a delete does nothing.
func (s *Service) commitScheduled(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.pendingSeq {
		return
	}
	s.commitPendingLocked()
}

// commitPendingLocked applies the pending draft and reports whether one existed.
func (s *Service) commitPendingLocked() bool {
	if s.pending == nil {
		return false
	}
	draft := *s.pending
	ctx := s.pendingCtx
	s.pending = nil
	s.pendingCtx = nil
	if ctx == nil {
		ctx = context.Background()
	}

	note, changed, err := s.applyDraftLocked(draft)
	if errors.Is(err, ErrNoteNotFound) {
		s.logger.Debug("dropping edit for missing note",
			zap.String("operation", opCommitDraft),
			zap.String("note_id", draft.NoteID.String()))
		return true
	}
	if err != nil {
		s.logError(opCommitDraft, reasonInvalidNote, err, zap.String("note_id", draft.NoteID.String()))
		return true
	}
	if changed {
		s.persistLocked(ctx, ChangeKindUpdated, note.ID)
	}
	return true
}

func (s *Service) applyDraftLocked(draft Draft) (Note, bool, error) {
	note, ok := s.collection.Get(draft.NoteID)
	if !ok {
		return Note{}, false, fmt.Errorf("%w: %s", ErrNoteNotFound, draft.NoteID)
	}
	if draft.Tags == nil {
		draft.Tags = []string{}
	}
	if !draft.differsFrom(note) {
		return note, false, nil
	}
	note.Title = draft.Title
	note.Content = draft.Content
	note.Tags = append([]string{}, draft.Tags...)
	note.UpdatedAt = normalizeTimestamp(s.clock())
	if note.UpdatedAt.Before(note.CreatedAt) {
		note.UpdatedAt = note.CreatedAt
	}
	if err := s.collection.Update(note); err != nil {
		return Note{}, false, err
	}
	return note, true, nil
}

func (s *Service) dropPendingLocked(id NoteID) {
	if s.pending != nil && s.pending.NoteID == id {
		s.pending = nil
		s.pendingCtx = nil
		s.debouncer.Cancel()
	}
}

// persistLocked saves the full list. Storage failures are logged and masked.
func (s *Service) persistLocked(ctx context.Context, kind ChangeKind, ids ...NoteID) {
	if err := s.persister.Save(ctx, s.collection.Notes()); err != nil {
		s.logError(opPersist, reasonSaveFailed, err, zap.String("change", string(kind)))
	}
	if s.onChange != nil {
		s.onChange(Change{Kind: kind, NoteIDs: ids, Timestamp: s.clock().UTC()})
	}
}

func (s *Service) collectionError(operation string, id NoteID, err error) error {
	switch {
	case errors.Is(err, ErrNoteNotFound):
		return newServiceError(operation, reasonNoteNotFound, err)
	case errors.Is(err, ErrInvalidNoteID):
		return newServiceError(operation, reasonInvalidNoteID, err)
	default:
		s.logError(operation, reasonInvalidNote, err, zap.String("note_id", id.String()))
		return newServiceError(operation, reasonInvalidNote, err)
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
