package service

import (
	"context"
	"sync"
	"time"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

// The repositories and the notifier are mocked with function fields; a nil
// field means the test does not expect the call.

type mockUserRepo struct {
	FindByUsernameHashFunc func(ctx context.Context, usernameHash string) (*models.User, error)
	FindByTokenHashFunc    func(ctx context.Context, tokenHash string) (*models.User, error)
	SaveTokenFunc          func(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	ClearTokenFunc         func(ctx context.Context, userID int64) error
	ClearSessionFunc       func(ctx context.Context, userID int64) error
	SetActiveMissionFunc   func(ctx context.Context, userID int64, eid int64) error
}

func (m *mockUserRepo) FindByUsernameHash(ctx context.Context, usernameHash string) (*models.User, error) {
	return m.FindByUsernameHashFunc(ctx, usernameHash)
}

func (m *mockUserRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	return m.FindByTokenHashFunc(ctx, tokenHash)
}

func (m *mockUserRepo) SaveToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	return m.SaveTokenFunc(ctx, userID, tokenHash, expiresAt)
}

func (m *mockUserRepo) ClearToken(ctx context.Context, userID int64) error {
	return m.ClearTokenFunc(ctx, userID)
}

func (m *mockUserRepo) ClearSession(ctx context.Context, userID int64) error {
	return m.ClearSessionFunc(ctx, userID)
}

func (m *mockUserRepo) SetActiveMission(ctx context.Context, userID int64, eid int64) error {
	return m.SetActiveMissionFunc(ctx, userID, eid)
}

type mockOrgRepo struct {
	ListActiveFunc func(ctx context.Context) ([]models.Organization, error)
	GetByOIDFunc   func(ctx context.Context, oid string) (*models.Organization, error)
}

func (m *mockOrgRepo) ListActive(ctx context.Context) ([]models.Organization, error) {
	return m.ListActiveFunc(ctx)
}

func (m *mockOrgRepo) GetByOID(ctx context.Context, oid string) (*models.Organization, error) {
	return m.GetByOIDFunc(ctx, oid)
}

// mockNotifier records every dispatched status update.
type mockNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
	err   error
}

type notifierCall struct {
	orgToken   string
	uid        string
	properties map[string]any
}

func (m *mockNotifier) SendStatus(ctx context.Context, orgToken string, uid string, properties map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, notifierCall{orgToken: orgToken, uid: uid, properties: properties})
	return m.err
}

func (m *mockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockMissionRepo struct {
	GetByEIDFunc       func(ctx context.Context, eid int64) (*models.Mission, error)
	ListAllFunc        func(ctx context.Context) ([]models.Mission, error)
	GetWantedFunc      func(ctx context.Context, eid int64) (map[string]any, error)
	GetSearchAreasFunc func(ctx context.Context, eid int64) (map[string]any, error)
	MutateRosterFunc   func(ctx context.Context, eid int64, fn func([]models.Participant) ([]models.Participant, error)) error
	MutatePOIsFunc     func(ctx context.Context, eid int64, fn func(map[string]any) (map[string]any, error)) error
}

func (m *mockMissionRepo) GetByEID(ctx context.Context, eid int64) (*models.Mission, error) {
	return m.GetByEIDFunc(ctx, eid)
}

func (m *mockMissionRepo) ListAll(ctx context.Context) ([]models.Mission, error) {
	return m.ListAllFunc(ctx)
}

func (m *mockMissionRepo) GetWanted(ctx context.Context, eid int64) (map[string]any, error) {
	return m.GetWantedFunc(ctx, eid)
}

func (m *mockMissionRepo) GetSearchAreas(ctx context.Context, eid int64) (map[string]any, error) {
	return m.GetSearchAreasFunc(ctx, eid)
}

func (m *mockMissionRepo) MutateRoster(ctx context.Context, eid int64, fn func([]models.Participant) ([]models.Participant, error)) error {
	return m.MutateRosterFunc(ctx, eid, fn)
}

func (m *mockMissionRepo) MutatePOIs(ctx context.Context, eid int64, fn func(map[string]any) (map[string]any, error)) error {
	return m.MutatePOIsFunc(ctx, eid, fn)
}

type mockLocationRepo struct {
	InsertBatchFunc func(ctx context.Context, points []models.TrackPoint) error
}

func (m *mockLocationRepo) InsertBatch(ctx context.Context, points []models.TrackPoint) error {
	return m.InsertBatchFunc(ctx, points)
}

type mockImageStore struct {
	SaveFunc   func(eid int64, name string, data []byte) error
	ExistsFunc func(eid int64, name string) bool
}

func (m *mockImageStore) Save(eid int64, name string, data []byte) error {
	return m.SaveFunc(eid, name, data)
}

func (m *mockImageStore) Exists(eid int64, name string) bool {
	return m.ExistsFunc(eid, name)
}

// memoryMissionRepo is a mutex-guarded in-memory roster store used to verify
// the merge semantics under concurrent writers. It serializes mutations the
// way the row lock does in production.
type memoryMissionRepo struct {
	mockMissionRepo

	mu     sync.Mutex
	roster []models.Participant
}

func (m *memoryMissionRepo) MutateRoster(ctx context.Context, eid int64, fn func([]models.Participant) ([]models.Participant, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated, err := fn(m.roster)
	if err != nil {
		return err
	}
	m.roster = updated
	return nil
}
