package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	contentTypeJSON   = "application/json; charset=utf-8"
	contentTypeGoCode = "text/x-go; charset=utf-8"
)

type noteListPayload struct {
	Notes    []notes.Note `json:"notes"`
	ActiveID string       `json:"active_id"`
}

type noteDetailPayload struct {
	Note     notes.Note  `json:"note"`
	Stats    notes.Stats `json:"stats"`
	TagInput string      `json:"tag_input"`
}

type editNoteRequestPayload struct {
	Title    *string  `json:"title"`
	Content  *string  `json:"content"`
	Tags     []string `json:"tags"`
	TagInput *string  `json:"tag_input"`
}

type editAcceptedPayload struct {
	NoteID  string `json:"note_id"`
	Pending bool   `json:"pending"`
}

type flushPayload struct {
	Flushed bool `json:"flushed"`
}

func newNoteDetail(note notes.Note) noteDetailPayload {
	return noteDetailPayload{
		Note:     note,
		Stats:    notes.ComputeStats(note.Content),
		TagInput: notes.FormatTags(note.Tags),
	}
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	view := h.notesService.Search(c.Query("q"))
	activeID := ""
	if active, ok := h.notesService.Active(); ok {
		activeID = active.ID.String()
	}
	c.JSON(http.StatusOK, noteListPayload{Notes: view, ActiveID: activeID})
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	note, err := h.notesService.Create(c.Request.Context())
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNoteDetail(note))
}

func (h *httpHandler) handleActiveNote(c *gin.Context) {
	note, ok := h.notesService.Active()
	if !ok {
		abortWithError(c, http.StatusNotFound, "no_active_note", "")
		return
	}
	c.JSON(http.StatusOK, newNoteDetail(note))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.notesService.Get(noteID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteDetail(note))
}

// handleReplaceNote stores the submitted note as is, timestamps included.
func (h *httpHandler) handleReplaceNote(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var note notes.Note
	if err := c.ShouldBindJSON(&note); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "")
		return
	}
	note.ID = noteID
	if note.Tags == nil {
		note.Tags = []string{}
	}
	if err := h.notesService.Update(c.Request.Context(), note); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteDetail(note))
}

// handleEditNote merges the submitted fields over the latest draft. The edit
// is debounced unless commit=true is given.
func (h *httpHandler) handleEditNote(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	var request editNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "")
		return
	}

	draft, err := h.notesService.Draft(noteID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if request.Title != nil {
		draft.Title = *request.Title
	}
	if request.Content != nil {
		draft.Content = *request.Content
	}
	switch {
	case request.Tags != nil:
		draft.Tags = notes.NormalizeTags(request.Tags)
	case request.TagInput != nil:
		draft.Tags = notes.ParseTags(*request.TagInput)
	}

	ctx := c.Request.Context()
	if c.Query("commit") == "true" {
		note, err := h.notesService.Apply(ctx, draft)
		if err != nil {
			h.writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, newNoteDetail(note))
		return
	}
	if err := h.notesService.Edit(ctx, draft); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, editAcceptedPayload{NoteID: noteID.String(), Pending: h.notesService.HasPendingEdit()})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	if c.Query("confirm") != "true" {
		abortWithError(c, http.StatusBadRequest, "confirmation_required", "")
		return
	}
	if err := h.notesService.Delete(c.Request.Context(), noteID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleTogglePin(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.notesService.TogglePin(c.Request.Context(), noteID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteDetail(note))
}

func (h *httpHandler) handleSelectNote(c *gin.Context) {
	noteID, ok := noteIDParam(c)
	if !ok {
		return
	}
	if err := h.notesService.Select(noteID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	note, err := h.notesService.Get(noteID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNoteDetail(note))
}

func (h *httpHandler) handleFlush(c *gin.Context) {
	c.JSON(http.StatusOK, flushPayload{Flushed: h.notesService.Flush()})
}

func (h *httpHandler) handleExport(c *gin.Context) {
	var buffer bytes.Buffer
	if err := storage.Export(&buffer, h.notesService.Notes()); err != nil {
		h.logger.Error("failed to export notes", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "export_failed", "")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.ExportFileName))
	c.Data(http.StatusOK, contentTypeJSON, buffer.Bytes())
}

func (h *httpHandler) handleExportSource(c *gin.Context) {
	var buffer bytes.Buffer
	if err := storage.ExportSource(&buffer, h.notesService.Notes()); err != nil {
		h.logger.Error("failed to export notes source", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "export_failed", "")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.ExportSourceFileName))
	c.Data(http.StatusOK, contentTypeGoCode, buffer.Bytes())
}

func noteIDParam(c *gin.Context) (notes.NoteID, bool) {
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_note_id", "")
		return "", false
	}
	return noteID, true
}
