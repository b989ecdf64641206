package notes

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// TimestampPrecision matches the millisecond resolution of ISO 8601 timestamps in exported files.
const TimestampPrecision = time.Millisecond

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidNote indicates that a note violates the updatedAt >= createdAt invariant.
	ErrInvalidNote = errors.New("notes: invalid note")
	// ErrNoteNotFound indicates that no note with the requested identifier exists in the collection.
	ErrNoteNotFound = errors.New("notes: note not found")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// Note is a single user-authored document. The JSON shape is shared by the
// persisted list and the export artifacts.
type Note struct {
	ID        NoteID    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Tags      []string  `json:"tags"`
	IsPinned  bool      `json:"isPinned"`
}

// Clone returns a copy that shares no slices with the receiver.
func (n Note) Clone() Note {
	clone := n
	clone.Tags = slices.Clone(n.Tags)
	if clone.Tags == nil {
		clone.Tags = []string{}
	}
	return clone
}

// Validate checks the per-note invariants.
func (n Note) Validate() error {
	if _, err := NewNoteID(n.ID.String()); err != nil {
		return err
	}
	if n.UpdatedAt.Before(n.CreatedAt) {
		return fmt.Errorf("%w: updatedAt precedes createdAt", ErrInvalidNote)
	}
	return nil
}

// matches reports whether the lowered query is a substring of the title, the content or any tag.
func (n Note) matches(loweredQuery string) bool {
	if loweredQuery == "" {
		return true
	}
	if strings.Contains(strings.ToLower(n.Title), loweredQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(n.Content), loweredQuery) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag), loweredQuery) {
			return true
		}
	}
	return false
}

// Draft carries the editable fields of a note while they wait for the debounce window.
type Draft struct {
	NoteID  NoteID
	Title   string
	Content string
	Tags    []string
}

// differsFrom reports whether applying the draft would change the note.
func (d Draft) differsFrom(note Note) bool {
	return d.Title != note.Title || d.Content != note.Content || !slices.Equal(d.Tags, note.Tags)
}

// ParseTags splits comma separated tag input into trimmed, non-empty tags.
// Order and duplicates are preserved and case is left untouched.
func ParseTags(input string) []string {
	return NormalizeTags(strings.Split(input, ","))
}

// NormalizeTags trims each tag and drops empty ones. Commas inside a tag are kept.
func NormalizeTags(values []string) []string {
	tags := []string{}
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		tags = append(tags, trimmed)
	}
	return tags
}

// FormatTags joins tags the way the editor's tag input displays them.
func FormatTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func normalizeTimestamp(value time.Time) time.Time {
	return value.UTC().Truncate(TimestampPrecision)
}
