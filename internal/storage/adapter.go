package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"go.uber.org/zap"
)

// DefaultNotesKey is the store key holding the serialized note list.
const DefaultNotesKey = "lumina_notes"

var errMissingStore = errors.New("storage: key/value store is required")

// AdapterConfig describes the dependencies of an Adapter.
type AdapterConfig struct {
	Store    KeyValueStore
	Key      string
	Logger   *zap.Logger
	Defaults func() []notes.Note
}

// Adapter reads and writes full snapshots of the note list. It never keeps a
// reference to the caller's notes.
type Adapter struct {
	store    KeyValueStore
	key      string
	logger   *zap.Logger
	defaults func() []notes.Note
}

// NewAdapter constructs an Adapter, filling in the default key and dataset.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = DefaultNotesKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = DefaultNotes
	}
	return &Adapter{store: cfg.Store, key: key, logger: logger, defaults: defaults}, nil
}

// Load returns the persisted list. A missing, unreadable or malformed value is
// replaced by the built-in dataset, which is persisted right away.
func (a *Adapter) Load(ctx context.Context) []notes.Note {
	raw, err := a.store.Get(ctx, a.key)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		a.logger.Info("no persisted notes, seeding defaults", zap.String("key", a.key))
		return a.seed(ctx)
	case err != nil:
		a.logger.Warn("failed to read persisted notes", zap.String("key", a.key), zap.Error(err))
		return a.seed(ctx)
	}

	decoded, err := decodeNotes([]byte(raw))
	if err != nil {
		a.logger.Warn("persisted notes are malformed", zap.String("key", a.key), zap.Error(err))
		return a.seed(ctx)
	}
	sanitized, dropped := sanitizeNotes(decoded)
	if dropped > 0 {
		a.logger.Warn("dropped notes with empty or duplicate ids", zap.Int("dropped", dropped))
	}
	return sanitized
}

// Save serializes the full list and overwrites the stored value.
func (a *Adapter) Save(ctx context.Context, list []notes.Note) error {
	payload, err := encodeNotes(list, "")
	if err != nil {
		return fmt.Errorf("storage: encode notes: %w", err)
	}
	if err := a.store.Set(ctx, a.key, string(payload)); err != nil {
		return err
	}
	return nil
}

func (a *Adapter) seed(ctx context.Context) []notes.Note {
	defaults := a.defaults()
	if err := a.Save(ctx, defaults); err != nil {
		a.logger.Error("failed to persist default notes", zap.String("key", a.key), zap.Error(err))
	}
	return defaults
}

// decodeNotes accepts only a JSON array of notes.
func decodeNotes(payload []byte) ([]notes.Note, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("storage: payload is not a JSON array")
	}
	var decoded []notes.Note
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// encodeNotes marshals the list without HTML escaping so rich-text content stays readable.
func encodeNotes(list []notes.Note, indent string) ([]byte, error) {
	normalized := make([]notes.Note, 0, len(list))
	for _, note := range list {
		normalized = append(normalized, note.Clone())
	}
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if indent != "" {
		encoder.SetIndent("", indent)
	}
	if err := encoder.Encode(normalized); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), nil
}

func sanitizeNotes(decoded []notes.Note) ([]notes.Note, int) {
	sanitized := make([]notes.Note, 0, len(decoded))
	seen := make(map[notes.NoteID]struct{}, len(decoded))
	dropped := 0
	for _, note := range decoded {
		noteID, err := notes.NewNoteID(note.ID.String())
		if err != nil {
			dropped++
			continue
		}
		if _, duplicate := seen[noteID]; duplicate {
			dropped++
			continue
		}
		seen[noteID] = struct{}{}
		note.ID = noteID
		sanitized = append(sanitized, note.Clone())
	}
	return sanitized, dropped
}
