package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/matchday/internal/model"
	"github.com/hitoshi/matchday/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn          func(ctx context.Context, id int64) (*model.User, error)
	findByExternalIDFn  func(ctx context.Context, externalID string) (*model.User, error)
	createFn            func(ctx context.Context, externalID, encryptedToken string) (*model.User, error)
	updateAccessTokenFn func(ctx context.Context, externalID, encryptedToken string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if m.findByExternalIDFn != nil {
		return m.findByExternalIDFn(ctx, externalID)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, externalID, encryptedToken string) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, externalID, encryptedToken)
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateAccessToken(ctx context.Context, externalID, encryptedToken string) (*model.User, error) {
	if m.updateAccessTokenFn != nil {
		return m.updateAccessTokenFn(ctx, externalID, encryptedToken)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn        func(ctx context.Context, session *model.Session, data []byte) error
	findDataFn      func(ctx context.Context, id string) ([]byte, error)
	updateDataFn    func(ctx context.Context, id string, data []byte) error
	deleteByIDFn    func(ctx context.Context, id string) error
	deleteExpiredFn func(ctx context.Context, now time.Time) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session, data []byte) error {
	if m.createFn != nil {
		return m.createFn(ctx, session, data)
	}
	return nil
}

func (m *mockSessionRepo) FindData(ctx context.Context, id string) ([]byte, error) {
	if m.findDataFn != nil {
		return m.findDataFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) UpdateData(ctx context.Context, id string, data []byte) error {
	if m.updateDataFn != nil {
		return m.updateDataFn(ctx, id, data)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx, now)
	}
	return 0, nil
}

type mockOAuthProvider struct {
	authCodeURLFn func(state string) string
	exchangeFn    func(ctx context.Context, code string) (*ProviderGrant, error)
}

func (m *mockOAuthProvider) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) Exchange(ctx context.Context, code string) (*ProviderGrant, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return nil, nil
}

// memoryUserRepo はuser_idを採番するインメモリのユーザーストア。
type memoryUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.User
	writes int
}

func newMemoryUserRepo(firstID int64) *memoryUserRepo {
	return &memoryUserRepo{nextID: firstID, byID: make(map[int64]*model.User)}
}

func (r *memoryUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (r *memoryUserRepo) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.ExternalID == externalID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) Create(_ context.Context, externalID, encryptedToken string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	for _, u := range r.byID {
		if u.ExternalID == externalID {
			u.EncryptedAccessToken = encryptedToken
			copied := *u
			return &copied, nil
		}
	}
	u := &model.User{ID: r.nextID, ExternalID: externalID, EncryptedAccessToken: encryptedToken}
	r.byID[u.ID] = u
	r.nextID++
	copied := *u
	return &copied, nil
}

func (r *memoryUserRepo) UpdateAccessToken(_ context.Context, externalID, encryptedToken string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	for _, u := range r.byID {
		if u.ExternalID == externalID {
			u.EncryptedAccessToken = encryptedToken
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.UserRepository = (*memoryUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
