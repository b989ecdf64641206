package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/lumina/internal/gate"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const tokenTypeBearer = "Bearer"

type sessionStatusPayload struct {
	Unlocked      bool `json:"unlocked"`
	SetupRequired bool `json:"setup_required"`
	Authenticated bool `json:"authenticated"`
}

type unlockRequestPayload struct {
	Password string `json:"password"`
}

type setPasswordRequestPayload struct {
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

type sessionTokenPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleSessionStatus(c *gin.Context) {
	_, err := h.authenticator.ValidateRequest(c.Request)
	c.JSON(http.StatusOK, sessionStatusPayload{
		Unlocked:      h.gate.IsUnlocked(),
		SetupRequired: !h.gate.HasSecret(c.Request.Context()),
		Authenticated: err == nil,
	})
}

func (h *httpHandler) handleUnlock(c *gin.Context) {
	var request unlockRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "")
		return
	}

	sessionID, err := h.gate.Unlock(c.Request.Context(), request.Password)
	if err != nil {
		h.logger.Info("unlock rejected")
		abortWithError(c, http.StatusUnauthorized, "incorrect_password", "")
		return
	}
	h.respondWithSession(c, sessionID)
}

func (h *httpHandler) handleSetPassword(c *gin.Context) {
	var request setPasswordRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "")
		return
	}

	ctx := c.Request.Context()
	if h.gate.HasSecret(ctx) {
		if _, err := h.authenticator.ValidateRequest(c.Request); err != nil {
			abortWithError(c, http.StatusForbidden, "locked", "")
			return
		}
	}

	sessionID, err := h.gate.SetSecret(ctx, request.Password, request.Confirmation)
	switch {
	case errors.Is(err, gate.ErrSecretTooShort):
		abortWithError(c, http.StatusBadRequest, "password_too_short", "")
		return
	case errors.Is(err, gate.ErrSecretMismatch):
		abortWithError(c, http.StatusBadRequest, "password_mismatch", "")
		return
	case errors.Is(err, gate.ErrLocked):
		abortWithError(c, http.StatusForbidden, "locked", "")
		return
	case err != nil:
		h.logger.Error("failed to store password", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "password_update_failed", "")
		return
	}
	h.respondWithSession(c, sessionID)
}

func (h *httpHandler) handleLock(c *gin.Context) {
	h.notesService.Flush()
	h.gate.Lock()
	h.realtime.Publish(RealtimeMessage{EventType: RealtimeEventLocked})
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.authenticator.CookieName(), "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondWithSession(c *gin.Context, sessionID string) {
	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "token_issue_failed", "")
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.authenticator.CookieName(), token, int(expiresIn), "/", "", false, true)
	c.JSON(http.StatusOK, sessionTokenPayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   tokenTypeBearer,
	})
}
