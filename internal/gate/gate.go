// Package gate guards note access behind a password and a process-scoped session flag.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/lumina/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultSecretKey is the store key holding the password hash.
	DefaultSecretKey = "lumina_password"
	// MinSecretLength is the shortest password accepted during setup.
	MinSecretLength = 4
)

var (
	// ErrIncorrectPassword is returned for every failed unlock, whether or not a password is set.
	ErrIncorrectPassword = errors.New("gate: incorrect password")
	// ErrSecretTooShort indicates a setup password below MinSecretLength characters.
	ErrSecretTooShort = fmt.Errorf("gate: password must be at least %d characters", MinSecretLength)
	// ErrSecretMismatch indicates that the setup password and its confirmation differ.
	ErrSecretMismatch = errors.New("gate: passwords do not match")
	// ErrLocked indicates that changing an existing password requires an unlocked session.
	ErrLocked = errors.New("gate: session is locked")

	errMissingSecretStore = errors.New("gate: secret store is required")
	errMissingSession     = errors.New("gate: session is required")
)

// GateConfig describes the dependencies of a Gate.
type GateConfig struct {
	Store     storage.KeyValueStore
	Session   *Session
	SecretKey string
	Logger    *zap.Logger
}

// Gate verifies passwords against the stored hash and drives the session flag.
type Gate struct {
	store     storage.KeyValueStore
	session   *Session
	secretKey string
	logger    *zap.Logger
}

// NewGate constructs a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Store == nil {
		return nil, errMissingSecretStore
	}
	if cfg.Session == nil {
		return nil, errMissingSession
	}
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		secretKey = DefaultSecretKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: cfg.Store, session: cfg.Session, secretKey: secretKey, logger: logger}, nil
}

// HasSecret reports whether a password has been set. Read failures count as
// set so that setup cannot be replayed over an existing password.
func (g *Gate) HasSecret(ctx context.Context) bool {
	_, found, err := g.storedHash(ctx)
	if err != nil {
		g.logger.Warn("failed to read password hash", zap.Error(err))
		return true
	}
	return found
}

// Verify reports whether candidate matches the stored password.
func (g *Gate) Verify(ctx context.Context, candidate string) bool {
	encoded, found, err := g.storedHash(ctx)
	if err != nil {
		g.logger.Warn("failed to read password hash", zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	matched, err := verifySecret(encoded, candidate)
	if err != nil {
		g.logger.Error("stored password hash is unusable", zap.Error(err))
		return false
	}
	return matched
}

// Unlock verifies candidate and, on success, unlocks the session and returns its id.
func (g *Gate) Unlock(ctx context.Context, candidate string) (string, error) {
	if !g.Verify(ctx, candidate) {
		return "", ErrIncorrectPassword
	}
	sessionID := g.session.Unlock()
	g.logger.Info("session unlocked")
	return sessionID, nil
}

// Lock clears the session flag.
func (g *Gate) Lock() {
	g.session.Lock()
	g.logger.Info("session locked")
}

// IsUnlocked reads the session flag.
func (g *Gate) IsUnlocked() bool {
	return g.session.IsUnlocked()
}

// IsSessionActive reports whether sessionID is the current unlocked session.
func (g *Gate) IsSessionActive(sessionID string) bool {
	return g.session.IsActive(sessionID)
}

// SetSecret stores a new password. It is allowed while no password exists or
// while the session is unlocked, and leaves the session unlocked.
func (g *Gate) SetSecret(ctx context.Context, password, confirmation string) (string, error) {
	if utf8.RuneCountInString(password) < MinSecretLength {
		return "", ErrSecretTooShort
	}
	if password != confirmation {
		return "", ErrSecretMismatch
	}
	_, found, err := g.storedHash(ctx)
	if err != nil {
		return "", err
	}
	if found && !g.session.IsUnlocked() {
		return "", ErrLocked
	}
	if err := g.writeSecret(ctx, password); err != nil {
		return "", err
	}
	g.logger.Info("password updated")
	return g.session.Unlock(), nil
}

// Seed stores password when none is set yet. The session stays locked.
func (g *Gate) Seed(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}
	if utf8.RuneCountInString(password) < MinSecretLength {
		return ErrSecretTooShort
	}
	_, found, err := g.storedHash(ctx)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	if err := g.writeSecret(ctx, password); err != nil {
		return err
	}
	g.logger.Info("password seeded from configuration")
	return nil
}

func (g *Gate) writeSecret(ctx context.Context, password string) error {
	encoded, err := hashSecret(password)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, g.secretKey, encoded); err != nil {
		return fmt.Errorf("gate: store password hash: %w", err)
	}
	return nil
}

func (g *Gate) storedHash(ctx context.Context) (string, bool, error) {
	encoded, err := g.store.Get(ctx, g.secretKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("gate: read password hash: %w", err)
	}
	if encoded == "" {
		return "", false, nil
	}
	return encoded, true, nil
}
