// Package service implements the business logic of the app interface:
// session authentication and mission participation. Persistence and
// notification are delegated to interfaces implemented in the repository
// and notify packages.
package service

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// UserRepository defines the user persistence operations required by the
// services.
type UserRepository interface {
	// FindByUsernameHash returns the user stored under the given username
	// digest, or (nil, nil) when no user matches.
	FindByUsernameHash(ctx context.Context, usernameHash string) (*models.User, error)
	// FindByTokenHash returns the user holding the given token digest, or
	// (nil, nil) when no user matches.
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
	// SaveToken stores a fresh token digest and expiry, replacing any
	// previous session.
	SaveToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	// ClearToken revokes the session but keeps the mission selection.
	ClearToken(ctx context.Context, userID int64) error
	// ClearSession revokes the session and the mission selection.
	ClearSession(ctx context.Context, userID int64) error
	// SetActiveMission records the mission the user joined.
	SetActiveMission(ctx context.Context, userID int64, eid int64) error
}

// OrganizationRepository defines the organization lookups required by the
// services.
type OrganizationRepository interface {
	// ListActive returns all enabled organizations.
	ListActive(ctx context.Context) ([]models.Organization, error)
	// GetByOID returns one enabled organization or apperr.ErrNotFound.
	GetByOID(ctx context.Context, oid string) (*models.Organization, error)
}

// StatusNotifier dispatches participant status changes to the web
// interface.
type StatusNotifier interface {
	SendStatus(ctx context.Context, orgToken string, uid string, properties map[string]any) error
}

// logoutStatusCode is the status the web interface records when a
// participant signs off.
const logoutStatusCode = "11"

// Session is the result of a successful login. Token is the raw bearer
// secret; this is the only place it ever exists server-side, everything
// persisted is its digest.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthService issues, validates and revokes bearer session tokens. A user
// has at most one live token; logging in again replaces the previous one.
type AuthService struct {
	users    UserRepository
	orgs     OrganizationRepository
	notifier StatusNotifier
	tokenTTL time.Duration
	log      *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewAuthService constructs an AuthService. tokenTTL is the configured
// session lifetime.
func NewAuthService(users UserRepository, orgs OrganizationRepository, notifier StatusNotifier, tokenTTL time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		orgs:     orgs,
		notifier: notifier,
		tokenTTL: tokenTTL,
		log:      log,
		now:      time.Now,
	}
}

// Login verifies the credentials and issues a fresh session token.
//
// The user lookup key is sha256(organizationID + "-" + username); that hash
// is an index key, not a secrecy mechanism. The stored password has the
// form "md5hex:salt", a weak legacy primitive kept because the database is
// shared with the web interface, and is compared in constant time. Both an
// unknown user and a wrong password fail with apperr.ErrInvalidCredentials
// so callers cannot tell the cases apart.
func (s *AuthService) Login(ctx context.Context, organizationID, username, password string) (*Session, error) {
	usernameHash := sha256Hex(organizationID + "-" + username)

	user, err := s.users.FindByUsernameHash(ctx, usernameHash)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.ErrInvalidCredentials
	}

	storedHash, salt, ok := strings.Cut(user.Field("pwd"), ":")
	if !ok {
		s.log.Warn("user record has malformed password field", zap.Int64("user", user.ID))
		return nil, apperr.ErrInvalidCredentials
	}
	digest := md5.Sum([]byte(password + salt))
	computed := hex.EncodeToString(digest[:])
	if subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) != 1 {
		return nil, apperr.ErrInvalidCredentials
	}

	return s.issueToken(ctx, user)
}

// issueToken generates a 64-character bearer secret, persists its digest
// and expiry, and returns the secret to the caller exactly once.
func (s *AuthService) issueToken(ctx context.Context, user *models.User) (*Session, error) {
	raw := make([]byte, 48)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := base64.StdEncoding.EncodeToString(raw)

	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.tokenTTL)
	if err := s.users.SaveToken(ctx, user.ID, sha256Hex(token), expiresAt); err != nil {
		return nil, err
	}
	return &Session{Token: token, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Validate resolves a bearer token to its user. It returns (nil, nil) for
// any token that does not map to a live session: unknown digests, sessions
// with a missing expiry (corrupt state) and expired sessions. In the latter
// two cases the stored token columns are cleared on the way out. A token
// presented at exactly its expiry instant is already expired.
func (s *AuthService) Validate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}

	user, err := s.users.FindByTokenHash(ctx, sha256Hex(token))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	if user.TokenExpiresAt == nil {
		s.log.Warn("session without expiry, revoking", zap.Int64("user", user.ID))
		if err := s.users.ClearToken(ctx, user.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if !user.TokenExpiresAt.After(s.now()) {
		if err := s.users.ClearToken(ctx, user.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return user, nil
}

// Logout revokes the user's session and mission selection. When a mission
// is still selected, the sign-off status is reported to the web interface
// first; a failing report is logged but never blocks the logout. Repeated
// calls are no-ops.
func (s *AuthService) Logout(ctx context.Context, user *models.User) error {
	if user.ActiveMissionID != nil {
		org, err := s.orgs.GetByOID(ctx, user.OID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			s.log.Warn("logout without organization", zap.String("oid", user.OID))
		case err != nil:
			return err
		default:
			props := map[string]any{"status": logoutStatusCode}
			if err := s.notifier.SendStatus(ctx, org.Token, user.UID, props); err != nil {
				s.log.Warn("logout status dispatch failed", zap.Error(err))
			}
		}
	}
	return s.users.ClearSession(ctx, user.ID)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
