package notes

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const longDelay = time.Hour

func newTestService(t *testing.T, persister *memoryPersister, delay time.Duration) *Service {
	t.Helper()
	clock := &steppingClock{current: baseTime, step: time.Second}
	service, err := NewService(ServiceConfig{
		Persister:  persister,
		Clock:      clock.Now,
		IDProvider: &sequenceIDProvider{},
		Logger:     zap.NewNop(),
		EditDelay:  delay,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	service.Open(context.Background())
	t.Cleanup(service.Close)
	return service
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{IDProvider: &sequenceIDProvider{}})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.service.new.missing_persister" {
		t.Fatalf("expected missing persister error, got %v", err)
	}

	_, err = NewService(ServiceConfig{Persister: &memoryPersister{}})
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.service.new.missing_id_provider" {
		t.Fatalf("expected missing id provider error, got %v", err)
	}
}

func TestOpenSelectsFirstNoteOfView(t *testing.T) {
	persister := &memoryPersister{initial: []Note{
		noteAt("older", baseTime, false),
		noteAt("newer", baseTime.Add(time.Hour), false),
	}}
	service := newTestService(t, persister, longDelay)

	active, ok := service.Active()
	if !ok || active.ID != "newer" {
		t.Fatalf("expected newest note to be active, got %v", active.ID)
	}
	if got := viewIDs(service.Notes()); !slices.Equal(got, []NoteID{"older", "newer"}) {
		t.Fatalf("storage order should be preserved, got %v", got)
	}
}

func TestCreatePersistsImmediately(t *testing.T) {
	persister := &memoryPersister{}
	service := newTestService(t, persister, longDelay)

	created, err := service.Create(context.Background())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if persister.saveCount() != 1 {
		t.Fatalf("expected one save, got %d", persister.saveCount())
	}
	loaded := persister.Load(context.Background())
	if len(loaded) != 1 || loaded[0].ID != created.ID {
		t.Fatalf("expected created note to be persisted, got %+v", loaded)
	}
	active, _ := service.Active()
	if active.ID != created.ID {
		t.Fatalf("expected created note to be active")
	}
}

func TestCreateReportsIDGenerationFailure(t *testing.T) {
	service, err := NewService(ServiceConfig{Persister: &memoryPersister{}, IDProvider: failingIDProvider{}})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}

	_, err = service.Create(context.Background())
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.create.id_generation_failed" {
		t.Fatalf("expected id generation error, got %v", err)
	}
}

func TestEditCommitsAfterDebounceWindow(t *testing.T) {
	persister := &memoryPersister{}
	service := newTestService(t, persister, 20*time.Millisecond)
	ctx := context.Background()

	created, err := service.Create(ctx)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := service.Edit(ctx, Draft{NoteID: created.ID, Title: "Test"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if !service.HasPendingEdit() {
		t.Fatalf("expected edit to be pending")
	}
	if persister.saveCount() != 1 {
		t.Fatalf("edit should not persist before the debounce window elapses")
	}

	waitFor(t, func() bool { return persister.saveCount() == 2 })

	loaded := persister.Load(ctx)
	if loaded[0].Title != "Test" {
		t.Fatalf("expected persisted title Test, got %q", loaded[0].Title)
	}
	if !loaded[0].UpdatedAt.After(loaded[0].CreatedAt) {
		t.Fatalf("expected updatedAt %v after createdAt %v", loaded[0].UpdatedAt, loaded[0].CreatedAt)
	}
	if service.HasPendingEdit() {
		t.Fatalf("expected no pending edit after commit")
	}
}

func TestEditsWithinWindowCoalesce(t *testing.T) {
	persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	for _, title := range []string{"T", "Te", "Tes", "Test"} {
		if err := service.Edit(ctx, Draft{NoteID: "a", Title: title, Tags: []string{"draft"}}); err != nil {
			t.Fatalf("edit failed: %v", err)
		}
	}
	if !service.Flush() {
		t.Fatalf("expected a pending edit to flush")
	}
	if persister.saveCount() != 1 {
		t.Fatalf("expected exactly one save, got %d", persister.saveCount())
	}
	note, err := service.Get("a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if note.Title != "Test" || !slices.Equal(note.Tags, []string{"draft"}) {
		t.Fatalf("expected latest draft to win, got %+v", note)
	}
	if service.Flush() {
		t.Fatalf("second flush should find nothing pending")
	}
}

func TestEditWithoutChangesDoesNotTouchNote(t *testing.T) {
	original := noteAt("a", baseTime, false)
	original.Title = "same"
	original.Tags = []string{"x"}
	persister := &memoryPersister{initial: []Note{original}}
	service := newTestService(t, persister, longDelay)

	if err := service.Edit(context.Background(), Draft{NoteID: "a", Title: "same", Tags: []string{"x"}}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	service.Flush()

	if persister.saveCount() != 0 {
		t.Fatalf("unchanged draft should not persist")
	}
	note, _ := service.Get("a")
	if !note.UpdatedAt.Equal(original.UpdatedAt) {
		t.Fatalf("unchanged draft should not refresh updatedAt")
	}
}

func TestEditForAnotherNoteFlushesPreviousDraft(t *testing.T) {
	persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false), noteAt("b", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "for a"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if err := service.Edit(ctx, Draft{NoteID: "b", Title: "for b"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	first, _ := service.Get("a")
	if first.Title != "for a" {
		t.Fatalf("expected draft for a to be committed, got %q", first.Title)
	}
	second, _ := service.Get("b")
	if second.Title == "for b" {
		t.Fatalf("draft for b should still be pending")
	}
	if !service.HasPendingEdit() {
		t.Fatalf("expected draft for b to be pending")
	}
}

func TestEditKeepsDraftWhoseTimerIsWaitingForTheLock(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false), noteAt("b", baseTime, false)}}
		service := newTestService(t, persister, time.Millisecond)
		ctx := context.Background()

		if err := service.Edit(ctx, Draft{NoteID: "a", Title: "a edited"}); err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		// The timer takes the commit out of the debouncer and then blocks on the service lock.
		service.mu.Lock()
		deadline := time.Now().Add(2 * time.Second)
		for service.debouncer.Pending() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(5 * time.Millisecond)
		service.mu.Unlock()

		if err := service.Edit(ctx, Draft{NoteID: "b", Title: "b edited"}); err != nil {
			t.Fatalf("edit failed: %v", err)
		}
		service.Close()

		first, _ := service.Get("a")
		second, _ := service.Get("b")
		if first.Title != "a edited" || second.Title != "b edited" {
			t.Fatalf("attempt %d: expected both drafts committed, got a=%q b=%q", attempt, first.Title, second.Title)
		}
	}
}

func TestStaleTimerDoesNotCommitNewerDraftEarly(t *testing.T) {
	persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "first"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	service.mu.Lock()
	staleSeq := service.pendingSeq
	service.mu.Unlock()

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "second"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	service.commitScheduled(staleSeq)

	if !service.HasPendingEdit() {
		t.Fatalf("expected newer draft to remain pending")
	}
	if note, _ := service.Get("a"); note.Title == "second" {
		t.Fatalf("stale timer committed the newer draft")
	}
}

func TestDeleteDropsPendingDraft(t *testing.T) {
	persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false), noteAt("b", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "doomed"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if err := service.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if service.HasPendingEdit() {
		t.Fatalf("expected pending draft to be cancelled")
	}
	if service.Flush() {
		t.Fatalf("nothing should be flushed after delete")
	}
	if got := viewIDs(persister.Load(ctx)); !slices.Equal(got, []NoteID{"b"}) {
		t.Fatalf("unexpected persisted notes %v", got)
	}
}

func TestApplyCommitsImmediatelyAndReplacesPendingDraft(t *testing.T) {
	persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "stale"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	note, err := service.Apply(ctx, Draft{NoteID: "a", Title: "final", Content: "<p>body</p>"})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if note.Title != "final" || persister.saveCount() != 1 {
		t.Fatalf("expected immediate commit, got %+v with %d saves", note, persister.saveCount())
	}
	if service.HasPendingEdit() {
		t.Fatalf("stale draft should be dropped")
	}
}

func TestCloseFlushesPendingDraftAndCommitsLaterEditsSynchronously(t *testing.T) {
	persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "before close"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	service.Close()
	if persister.Load(ctx)[0].Title != "before close" {
		t.Fatalf("expected close to flush the pending draft")
	}

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "after close"}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if persister.Load(ctx)[0].Title != "after close" {
		t.Fatalf("expected edits after close to commit synchronously")
	}
}

func TestMissingNoteOperationsReturnCodedNotFound(t *testing.T) {
	persister := &memoryPersister{initial: []Note{noteAt("a", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	_, pinErr := service.TogglePin(ctx, "ghost")
	_, applyErr := service.Apply(ctx, Draft{NoteID: "ghost"})
	_, getErr := service.Get("ghost")
	testCases := []struct {
		name string
		err  error
		code string
	}{
		{name: "delete", err: service.Delete(ctx, "ghost"), code: "notes.delete.note_not_found"},
		{name: "pin", err: pinErr, code: "notes.toggle_pin.note_not_found"},
		{name: "select", err: service.Select("ghost"), code: "notes.select.note_not_found"},
		{name: "edit", err: service.Edit(ctx, Draft{NoteID: "ghost"}), code: "notes.edit.note_not_found"},
		{name: "apply", err: applyErr, code: "notes.apply_draft.note_not_found"},
		{name: "update", err: service.Update(ctx, noteAt("ghost", baseTime, false)), code: "notes.update.note_not_found"},
		{name: "get", err: getErr, code: "notes.get.note_not_found"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if !errors.Is(testCase.err, ErrNoteNotFound) {
				t.Fatalf("expected not found, got %v", testCase.err)
			}
			var serviceErr *ServiceError
			if !errors.As(testCase.err, &serviceErr) || serviceErr.Code() != testCase.code {
				t.Fatalf("expected code %s, got %v", testCase.code, testCase.err)
			}
		})
	}
	if persister.saveCount() != 0 {
		t.Fatalf("missing-id operations must not persist")
	}
}

func TestSaveFailuresAreLoggedAndMasked(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	persister := &memoryPersister{saveErr: errors.New("quota exceeded")}
	service, err := NewService(ServiceConfig{
		Persister:  persister,
		IDProvider: &sequenceIDProvider{},
		Logger:     zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	service.Open(context.Background())

	created, err := service.Create(context.Background())
	if err != nil {
		t.Fatalf("save failure should not surface, got %v", err)
	}
	if _, err := service.Get(created.ID); err != nil {
		t.Fatalf("note should remain in memory: %v", err)
	}

	entries := logs.FilterMessage("notes service error").All()
	if len(entries) != 1 {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != opPersist || fields["reason"] != reasonSaveFailed {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestChangeListenerReceivesPersistedChanges(t *testing.T) {
	var mu sync.Mutex
	var kinds []ChangeKind
	service, err := NewService(ServiceConfig{
		Persister:  &memoryPersister{},
		IDProvider: &sequenceIDProvider{},
		EditDelay:  longDelay,
		OnChange: func(change Change) {
			mu.Lock()
			defer mu.Unlock()
			kinds = append(kinds, change.Kind)
		},
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	service.Open(context.Background())
	ctx := context.Background()

	created, _ := service.Create(ctx)
	_, _ = service.TogglePin(ctx, created.ID)
	_ = service.Edit(ctx, Draft{NoteID: created.ID, Title: "x"})
	service.Flush()
	_ = service.Delete(ctx, created.ID)

	mu.Lock()
	defer mu.Unlock()
	want := []ChangeKind{ChangeKindCreated, ChangeKindPinned, ChangeKindUpdated, ChangeKindDeleted}
	if !slices.Equal(kinds, want) {
		t.Fatalf("unexpected change kinds %v", kinds)
	}
}

func TestSearchSetsFilterForDeleteReselection(t *testing.T) {
	work := noteAt("work", baseTime, false)
	work.Title = "work plan"
	other := noteAt("other", baseTime.Add(time.Hour), false)
	workLog := noteAt("work-log", baseTime.Add(-time.Hour), false)
	workLog.Title = "work log"
	persister := &memoryPersister{initial: []Note{work, other, workLog}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	if got := viewIDs(service.Search("work")); !slices.Equal(got, []NoteID{"work", "work-log"}) {
		t.Fatalf("unexpected search result %v", got)
	}
	if err := service.Select("work"); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if err := service.Delete(ctx, "work"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	active, ok := service.Active()
	if !ok || active.ID != "work-log" {
		t.Fatalf("expected work-log to become active, got %v", active.ID)
	}
	if got := viewIDs(service.View("")); !slices.Equal(got, []NoteID{"other", "work-log"}) {
		t.Fatalf("view should not depend on the recorded filter, got %v", got)
	}
}

func TestDraftPrefersPendingEdit(t *testing.T) {
	committed := noteAt("a", baseTime, false)
	committed.Title = "Committed"
	committed.Tags = []string{"x"}
	persister := &memoryPersister{initial: []Note{committed, noteAt("b", baseTime, false)}}
	service := newTestService(t, persister, longDelay)
	ctx := context.Background()

	draft, err := service.Draft("a")
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if draft.Title != "Committed" || !slices.Equal(draft.Tags, []string{"x"}) {
		t.Fatalf("expected committed fields, got %+v", draft)
	}

	if err := service.Edit(ctx, Draft{NoteID: "a", Title: "Pending", Tags: []string{"y"}}); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	draft, err = service.Draft("a")
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	if draft.Title != "Pending" || !slices.Equal(draft.Tags, []string{"y"}) {
		t.Fatalf("expected pending draft, got %+v", draft)
	}

	other, err := service.Draft("b")
	if err != nil || other.NoteID != "b" {
		t.Fatalf("expected committed draft for b, got %+v %v", other, err)
	}

	if _, err := service.Draft("missing"); !errors.Is(err, ErrNoteNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
