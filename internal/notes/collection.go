package notes

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrDuplicateNoteID indicates that an inserted note reuses an identifier already in the collection.
var ErrDuplicateNoteID = errors.New("notes: duplicate note id")

// Collection is the in-memory note list and its active selection.
// It is not safe for concurrent use; Service serializes access.
type Collection struct {
	notes    []Note
	activeID NoteID
	filter   string
}

// NewCollection copies the provided notes in order. Later entries reusing an
// identifier are skipped so ids stay unique.
func NewCollection(initial []Note) *Collection {
	collection := &Collection{notes: make([]Note, 0, len(initial))}
	seen := make(map[NoteID]struct{}, len(initial))
	for _, note := range initial {
		if _, duplicate := seen[note.ID]; duplicate {
			continue
		}
		seen[note.ID] = struct{}{}
		collection.notes = append(collection.notes, note.Clone())
	}
	return collection
}

// Len returns the number of notes.
func (c *Collection) Len() int {
	return len(c.notes)
}

// Notes returns a copy of the list in storage order.
func (c *Collection) Notes() []Note {
	snapshot := make([]Note, 0, len(c.notes))
	for _, note := range c.notes {
		snapshot = append(snapshot, note.Clone())
	}
	return snapshot
}

// Get returns the note with the given identifier.
func (c *Collection) Get(id NoteID) (Note, bool) {
	index := c.indexOf(id)
	if index < 0 {
		return Note{}, false
	}
	return c.notes[index].Clone(), true
}

// Create inserts an empty note at the front and makes it the active selection.
func (c *Collection) Create(id NoteID, now time.Time) (Note, error) {
	if _, err := NewNoteID(id.String()); err != nil {
		return Note{}, err
	}
	if c.indexOf(id) >= 0 {
		return Note{}, fmt.Errorf("%w: %s", ErrDuplicateNoteID, id)
	}
	timestamp := normalizeTimestamp(now)
	note := Note{
		ID:        id,
		CreatedAt: timestamp,
		UpdatedAt: timestamp,
		Tags:      []string{},
	}
	c.notes = slices.Insert(c.notes, 0, note)
	c.activeID = id
	return note.Clone(), nil
}

// Update replaces the stored note that shares the given note's identifier.
func (c *Collection) Update(note Note) error {
	if err := note.Validate(); err != nil {
		return err
	}
	index := c.indexOf(note.ID)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, note.ID)
	}
	c.notes[index] = note.Clone()
	return nil
}

// Delete removes the note. When it was active, the first note of the current
// filtered view becomes active, or nothing when the view is empty.
func (c *Collection) Delete(id NoteID) error {
	index := c.indexOf(id)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	c.notes = slices.Delete(c.notes, index, index+1)
	if c.activeID == id {
		c.activeID = ""
		if view := c.View(c.filter); len(view) > 0 {
			c.activeID = view[0].ID
		}
	}
	return nil
}

// TogglePin flips the pinned flag and returns the updated note.
func (c *Collection) TogglePin(id NoteID) (Note, error) {
	index := c.indexOf(id)
	if index < 0 {
		return Note{}, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	c.notes[index].IsPinned = !c.notes[index].IsPinned
	return c.notes[index].Clone(), nil
}

// Select makes the note the active selection.
func (c *Collection) Select(id NoteID) error {
	if c.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	c.activeID = id
	return nil
}

// Active returns the active note, if any.
func (c *Collection) Active() (Note, bool) {
	if c.activeID == "" {
		return Note{}, false
	}
	return c.Get(c.activeID)
}

// SetFilter records the search query the presentation is currently showing.
func (c *Collection) SetFilter(query string) {
	c.filter = query
}

// Filter returns the current search query.
func (c *Collection) Filter() string {
	return c.filter
}

// View returns the notes matching query, pinned first and then most recently
// updated first. Notes with equal keys keep their storage order.
func (c *Collection) View(query string) []Note {
	loweredQuery := strings.ToLower(query)
	view := make([]Note, 0, len(c.notes))
	for _, note := range c.notes {
		if note.matches(loweredQuery) {
			view = append(view, note.Clone())
		}
	}
	slices.SortStableFunc(view, compareForView)
	return view
}

func compareForView(left, right Note) int {
	if left.IsPinned != right.IsPinned {
		if left.IsPinned {
			return -1
		}
		return 1
	}
	return right.UpdatedAt.Compare(left.UpdatedAt)
}

func (c *Collection) indexOf(id NoteID) int {
	return slices.IndexFunc(c.notes, func(note Note) bool {
		return note.ID == id
	})
}
