package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/auth"
	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionIDContextKey = "lumina_session_id"

var (
	errMissingGate          = errors.New("access gate dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingAuthenticator = errors.New("request authenticator dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
)

// AccessGate is the password gate in front of the notes.
type AccessGate interface {
	HasSecret(ctx context.Context) bool
	IsUnlocked() bool
	Unlock(ctx context.Context, candidate string) (string, error)
	SetSecret(ctx context.Context, password, confirmation string) (string, error)
	Lock()
}

// SessionTokenManager signs tokens for unlocked sessions.
type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, sessionID string) (string, int64, error)
}

// RequestAuthenticator resolves the session carried by a request.
type RequestAuthenticator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type Dependencies struct {
	Gate          AccessGate
	TokenManager  SessionTokenManager
	Authenticator RequestAuthenticator
	NotesService  *notes.Service
	Realtime      *RealtimeDispatcher
	Logger        *zap.Logger

	// AllowedOrigins may call the API with the session cookie. When empty, any
	// origin may call it with a bearer token but credentials are not allowed.
	AllowedOrigins []string

	// HeartbeatInterval spaces keep-alive events on /notes/events.
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Gate == nil {
		return nil, errMissingGate
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		gate:          deps.Gate,
		tokens:        deps.TokenManager,
		authenticator: deps.Authenticator,
		notesService:  deps.NotesService,
		realtime:      realtime,
		logger:        logger,

		heartbeatInterval: deps.HeartbeatInterval,
	}

	router.GET("/session", handler.handleSessionStatus)
	router.POST("/session/unlock", handler.handleUnlock)
	router.POST("/session/password", handler.handleSetPassword)
	router.POST("/session/lock", handler.authorizeRequest, handler.handleLock)

	protected := router.Group("/notes")
	protected.Use(handler.authorizeRequest)
	protected.GET("", handler.handleListNotes)
	protected.POST("", handler.handleCreateNote)
	protected.GET("/active", handler.handleActiveNote)
	protected.POST("/flush", handler.handleFlush)
	protected.GET("/export", handler.handleExport)
	protected.GET("/export/source", handler.handleExportSource)
	protected.GET("/events", handler.handleNotesEvents)
	protected.GET("/:id", handler.handleGetNote)
	protected.PUT("/:id", handler.handleReplaceNote)
	protected.PATCH("/:id", handler.handleEditNote)
	protected.DELETE("/:id", handler.handleDeleteNote)
	protected.POST("/:id/pin", handler.handleTogglePin)
	protected.POST("/:id/select", handler.handleSelectNote)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	gate          AccessGate
	tokens        SessionTokenManager
	authenticator RequestAuthenticator
	notesService  *notes.Service
	realtime      *RealtimeDispatcher
	logger        *zap.Logger

	heartbeatInterval time.Duration
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.authenticator.ValidateRequest(c.Request)
	if err != nil {
		if isRoutineAuthFailure(err) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		abortWithError(c, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	c.Set(sessionIDContextKey, claims.SessionID)
	c.Next()
}

func isRoutineAuthFailure(err error) bool {
	return errors.Is(err, auth.ErrMissingSessionToken) ||
		errors.Is(err, auth.ErrExpiredSessionToken) ||
		errors.Is(err, auth.ErrInactiveSession)
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func abortWithError(c *gin.Context, status int, reason, code string) {
	if code == "" {
		code = reason
	}
	c.AbortWithStatusJSON(status, errorPayload{Error: reason, Code: code})
}

// writeServiceError maps notes service failures onto HTTP statuses.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	code := ""
	var serviceErr *notes.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		abortWithError(c, http.StatusNotFound, "note_not_found", code)
	case errors.Is(err, notes.ErrInvalidNoteID):
		abortWithError(c, http.StatusBadRequest, "invalid_note_id", code)
	case errors.Is(err, notes.ErrInvalidNote):
		abortWithError(c, http.StatusBadRequest, "invalid_note", code)
	default:
		h.logger.Error("notes request failed", zap.String("code", code), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "internal_error", code)
	}
}
