package service

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/apperr"
	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func testUser(password, salt string) *models.User {
	return &models.User{
		ID:   7,
		UID:  "uid-7",
		OID:  "org-1",
		Data: map[string]any{"pwd": md5Hex(password+salt) + ":" + salt},
	}
}

func TestLoginSuccess(t *testing.T) {
	user := testUser("secret", "pepper")
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var savedHash string
	var savedExpiry time.Time
	users := &mockUserRepo{
		FindByUsernameHashFunc: func(ctx context.Context, usernameHash string) (*models.User, error) {
			assert.Equal(t, sha256Hex("org-1-alice"), usernameHash)
			return user, nil
		},
		SaveTokenFunc: func(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
			assert.Equal(t, int64(7), userID)
			savedHash = tokenHash
			savedExpiry = expiresAt
			return nil
		},
	}

	s := NewAuthService(users, &mockOrgRepo{}, &mockNotifier{}, time.Hour, zap.NewNop())
	s.now = func() time.Time { return now }

	session, err := s.Login(context.Background(), "org-1", "alice", "secret")
	require.NoError(t, err)

	assert.Len(t, session.Token, 64)
	assert.Equal(t, now, session.IssuedAt)
	assert.Equal(t, now.Add(time.Hour), session.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), savedExpiry)

	// Only the digest of the secret is ever persisted.
	assert.Equal(t, sha256Hex(session.Token), savedHash)
	assert.NotEqual(t, session.Token, savedHash)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
	}{
		{name: "unknown user", user: nil},
		{name: "wrong password", user: testUser("other", "pepper")},
		{name: "malformed password field", user: &models.User{ID: 7, Data: map[string]any{"pwd": "nodelimiter"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{
				FindByUsernameHashFunc: func(ctx context.Context, usernameHash string) (*models.User, error) {
					return tt.user, nil
				},
			}
			s := NewAuthService(users, &mockOrgRepo{}, &mockNotifier{}, time.Hour, zap.NewNop())

			_, err := s.Login(context.Background(), "org-1", "alice", "secret")
			assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
		})
	}
}

func TestLoginSecondLoginReplacesToken(t *testing.T) {
	user := testUser("secret", "pepper")

	var savedHashes []string
	users := &mockUserRepo{
		FindByUsernameHashFunc: func(ctx context.Context, usernameHash string) (*models.User, error) {
			return user, nil
		},
		SaveTokenFunc: func(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
			savedHashes = append(savedHashes, tokenHash)
			return nil
		},
	}
	s := NewAuthService(users, &mockOrgRepo{}, &mockNotifier{}, time.Hour, zap.NewNop())

	first, err := s.Login(context.Background(), "org-1", "alice", "secret")
	require.NoError(t, err)
	second, err := s.Login(context.Background(), "org-1", "alice", "secret")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	// Each login overwrites the single token column; after the second login
	// only the latest digest is stored.
	require.Len(t, savedHashes, 2)
	assert.Equal(t, sha256Hex(second.Token), savedHashes[1])
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name        string
		token       string
		user        *models.User
		wantUser    bool
		wantCleared bool
	}{
		{name: "empty token", token: ""},
		{name: "unknown token", token: "sometoken"},
		{
			name:     "live session",
			token:    "sometoken",
			user:     &models.User{ID: 7, TokenExpiresAt: &future},
			wantUser: true,
		},
		{
			name:        "missing expiry",
			token:       "sometoken",
			user:        &models.User{ID: 7},
			wantCleared: true,
		},
		{
			name:        "expired session",
			token:       "sometoken",
			user:        &models.User{ID: 7, TokenExpiresAt: &past},
			wantCleared: true,
		},
		{
			name:        "expiry boundary is already expired",
			token:       "sometoken",
			user:        &models.User{ID: 7, TokenExpiresAt: &now},
			wantCleared: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleared := false
			users := &mockUserRepo{
				FindByTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.User, error) {
					assert.Equal(t, sha256Hex(tt.token), tokenHash)
					return tt.user, nil
				},
				ClearTokenFunc: func(ctx context.Context, userID int64) error {
					cleared = true
					return nil
				},
			}
			s := NewAuthService(users, &mockOrgRepo{}, &mockNotifier{}, time.Hour, zap.NewNop())
			s.now = func() time.Time { return now }

			user, err := s.Validate(context.Background(), tt.token)
			require.NoError(t, err)
			if tt.wantUser {
				require.NotNil(t, user)
				assert.Equal(t, tt.user.ID, user.ID)
			} else {
				assert.Nil(t, user)
			}
			assert.Equal(t, tt.wantCleared, cleared)
		})
	}
}

func TestValidateRepositoryError(t *testing.T) {
	wantErr := errors.New("connection lost")
	users := &mockUserRepo{
		FindByTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.User, error) {
			return nil, wantErr
		},
	}
	s := NewAuthService(users, &mockOrgRepo{}, &mockNotifier{}, time.Hour, zap.NewNop())

	_, err := s.Validate(context.Background(), "sometoken")
	assert.ErrorIs(t, err, wantErr)
}

func TestLogoutDispatchesSignOffStatus(t *testing.T) {
	eid := int64(42)
	user := &models.User{ID: 7, UID: "uid-7", OID: "org-1", ActiveMissionID: &eid}

	cleared := false
	users := &mockUserRepo{
		ClearSessionFunc: func(ctx context.Context, userID int64) error {
			assert.Equal(t, int64(7), userID)
			cleared = true
			return nil
		},
	}
	orgs := &mockOrgRepo{
		GetByOIDFunc: func(ctx context.Context, oid string) (*models.Organization, error) {
			assert.Equal(t, "org-1", oid)
			return &models.Organization{OID: "org-1", Token: "org-token"}, nil
		},
	}
	notifier := &mockNotifier{}

	s := NewAuthService(users, orgs, notifier, time.Hour, zap.NewNop())
	require.NoError(t, s.Logout(context.Background(), user))

	assert.True(t, cleared)
	require.Equal(t, 1, notifier.callCount())
	call := notifier.calls[0]
	assert.Equal(t, "org-token", call.orgToken)
	assert.Equal(t, "uid-7", call.uid)
	assert.Equal(t, map[string]any{"status": "11"}, call.properties)
}

func TestLogoutNotifierFailureStillClearsSession(t *testing.T) {
	eid := int64(42)
	user := &models.User{ID: 7, UID: "uid-7", OID: "org-1", ActiveMissionID: &eid}

	cleared := false
	users := &mockUserRepo{
		ClearSessionFunc: func(ctx context.Context, userID int64) error {
			cleared = true
			return nil
		},
	}
	orgs := &mockOrgRepo{
		GetByOIDFunc: func(ctx context.Context, oid string) (*models.Organization, error) {
			return &models.Organization{OID: "org-1", Token: "org-token"}, nil
		},
	}
	notifier := &mockNotifier{err: errors.New("status endpoint unreachable")}

	s := NewAuthService(users, orgs, notifier, time.Hour, zap.NewNop())
	require.NoError(t, s.Logout(context.Background(), user))
	assert.True(t, cleared)
}

func TestLogoutWithoutMissionSkipsNotification(t *testing.T) {
	user := &models.User{ID: 7, UID: "uid-7", OID: "org-1"}

	cleared := 0
	users := &mockUserRepo{
		ClearSessionFunc: func(ctx context.Context, userID int64) error {
			cleared++
			return nil
		},
	}
	notifier := &mockNotifier{}

	s := NewAuthService(users, &mockOrgRepo{}, notifier, time.Hour, zap.NewNop())
	require.NoError(t, s.Logout(context.Background(), user))
	// Repeated logouts are no-ops at the database level.
	require.NoError(t, s.Logout(context.Background(), user))

	assert.Equal(t, 2, cleared)
	assert.Equal(t, 0, notifier.callCount())
}

func TestLogoutMissingOrganization(t *testing.T) {
	eid := int64(42)
	user := &models.User{ID: 7, UID: "uid-7", OID: "org-gone", ActiveMissionID: &eid}

	cleared := false
	users := &mockUserRepo{
		ClearSessionFunc: func(ctx context.Context, userID int64) error {
			cleared = true
			return nil
		},
	}
	orgs := &mockOrgRepo{
		GetByOIDFunc: func(ctx context.Context, oid string) (*models.Organization, error) {
			return nil, apperr.ErrNotFound
		},
	}
	notifier := &mockNotifier{}

	s := NewAuthService(users, orgs, notifier, time.Hour, zap.NewNop())
	require.NoError(t, s.Logout(context.Background(), user))

	assert.True(t, cleared)
	assert.Equal(t, 0, notifier.callCount())
}

func TestTokensAreUnpredictable(t *testing.T) {
	user := testUser("secret", "pepper")
	users := &mockUserRepo{
		FindByUsernameHashFunc: func(ctx context.Context, usernameHash string) (*models.User, error) {
			return user, nil
		},
		SaveTokenFunc: func(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
			return nil
		},
	}
	s := NewAuthService(users, &mockOrgRepo{}, &mockNotifier{}, time.Hour, zap.NewNop())

	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		session, err := s.Login(context.Background(), "org-1", "alice", "secret")
		require.NoError(t, err)
		_, dup := seen[session.Token]
		require.False(t, dup)
		seen[session.Token] = struct{}{}
	}
}

func TestSha256HexMatchesStdlib(t *testing.T) {
	sum := sha256.Sum256([]byte("org-1-alice"))
	assert.Equal(t, hex.EncodeToString(sum[:]), sha256Hex("org-1-alice"))
}
