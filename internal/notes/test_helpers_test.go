package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func noteAt(id string, updatedAt time.Time, pinned bool) Note {
	return Note{
		ID:        NoteID(id),
		Title:     "title " + id,
		CreatedAt: updatedAt.Add(-time.Hour),
		UpdatedAt: updatedAt,
		Tags:      []string{},
		IsPinned:  pinned,
	}
}

func viewIDs(view []Note) []NoteID {
	ids := make([]NoteID, 0, len(view))
	for _, note := range view {
		ids = append(ids, note.ID)
	}
	return ids
}

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (NoteID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return NoteID(fmt.Sprintf("note-%d", p.next)), nil
}

type failingIDProvider struct{}

func (failingIDProvider) NewID() (NoteID, error) {
	return "", errors.New("entropy exhausted")
}

// memoryPersister records every saved snapshot.
type memoryPersister struct {
	mu      sync.Mutex
	initial []Note
	saved   [][]Note
	saveErr error
}

func (p *memoryPersister) Load(context.Context) []Note {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saved) > 0 {
		return cloneNotes(p.saved[len(p.saved)-1])
	}
	return cloneNotes(p.initial)
}

func (p *memoryPersister) Save(_ context.Context, notes []Note) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saved = append(p.saved, cloneNotes(notes))
	return nil
}

func (p *memoryPersister) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func cloneNotes(list []Note) []Note {
	cloned := make([]Note, 0, len(list))
	for _, note := range list {
		cloned = append(cloned, note.Clone())
	}
	return cloned
}

// steppingClock advances by step on every reading.
type steppingClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(c.step)
	return c.current
}
