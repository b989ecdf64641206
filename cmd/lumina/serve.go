package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/auth"
	"github.com/MarcoPoloResearchLab/lumina/internal/gate"
	"github.com/MarcoPoloResearchLab/lumina/internal/logging"
	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/server"
	"go.uber.org/zap"
)

const (
	signingSecretLength = 32
	shutdownTimeout     = 10 * time.Second
)

func (s *cli) runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	appConfig, err := s.loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := openBackend(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close store", zap.Error(closeErr))
		}
	}()

	adapter, err := newAdapter(appConfig, store.store, logger)
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	notesService, err := notes.NewService(notes.ServiceConfig{
		Persister:  adapter,
		Clock:      time.Now,
		IDProvider: notes.NewUUIDProvider(),
		Logger:     logger,
		EditDelay:  appConfig.EditDebounce,
		OnChange:   dispatcher.PublishChange,
	})
	if err != nil {
		return err
	}
	notesService.Open(ctx)
	defer notesService.Close()

	accessGate, err := gate.NewGate(gate.GateConfig{
		Store:   store.store,
		Session: gate.NewSession(time.Now),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := accessGate.Seed(ctx, appConfig.GatePassword); err != nil {
		return err
	}

	// Tokens die with the process, matching the in-memory session flag.
	signingSecret := make([]byte, signingSecretLength)
	if _, err := rand.Read(signingSecret); err != nil {
		return err
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: signingSecret,
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Issuer:     tokenIssuer,
		CookieName: appConfig.SessionCookieName,
		IsActive:   accessGate.IsSessionActive,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Gate:           accessGate,
		TokenManager:   tokenIssuer,
		Authenticator:  sessionValidator,
		NotesService:   notesService,
		Realtime:       dispatcher,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("storage_driver", appConfig.StorageDriver),
			zap.Bool("setup_required", !accessGate.HasSecret(ctx)))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
