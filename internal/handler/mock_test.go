package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/matchday/internal/auth"
	"github.com/hitoshi/matchday/internal/calendar"
	"github.com/hitoshi/matchday/internal/football"
	"github.com/hitoshi/matchday/internal/model"
)

// --- 関数フィールド型のモック ---

type mockAuthService struct {
	getLoginURLFn  func(state string) string
	authenticateFn func(ctx context.Context, code string) auth.ExchangeResult
	loginFn        func(ctx context.Context, user *model.User) (*model.Session, error)
	logoutFn       func(ctx context.Context, sessionID string) error
	currentUserFn  func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) Authenticate(ctx context.Context, code string) auth.ExchangeResult {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, code)
	}
	return auth.ExchangeResult{Outcome: auth.OutcomeError, Err: errors.New("not configured")}
}

func (m *mockAuthService) Login(ctx context.Context, user *model.User) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, user)
	}
	return &model.Session{ID: "session-1", UserID: user.ID}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, nil
}

type mockFavoriteService struct {
	listFn   func(ctx context.Context, userID int64) ([]int, error)
	addFn    func(ctx context.Context, userID int64, teamID int) (*model.FavoriteTeam, error)
	removeFn func(ctx context.Context, userID int64, teamID int) error
}

func (m *mockFavoriteService) List(ctx context.Context, userID int64) ([]int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []int{}, nil
}

func (m *mockFavoriteService) Add(ctx context.Context, userID int64, teamID int) (*model.FavoriteTeam, error) {
	if m.addFn != nil {
		return m.addFn(ctx, userID, teamID)
	}
	return &model.FavoriteTeam{UserID: userID, TeamID: teamID}, nil
}

func (m *mockFavoriteService) Remove(ctx context.Context, userID int64, teamID int) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, userID, teamID)
	}
	return nil
}

type mockFootballClient struct {
	fixturesFn    func(ctx context.Context, teamID, season string) (*football.Response, error)
	searchTeamsFn func(ctx context.Context, search string) (*football.Response, error)
	teamByIDFn    func(ctx context.Context, teamID string) (*football.Response, error)
}

func (m *mockFootballClient) Fixtures(ctx context.Context, teamID, season string) (*football.Response, error) {
	if m.fixturesFn != nil {
		return m.fixturesFn(ctx, teamID, season)
	}
	return jsonResponse(`{}`), nil
}

func (m *mockFootballClient) SearchTeams(ctx context.Context, search string) (*football.Response, error) {
	if m.searchTeamsFn != nil {
		return m.searchTeamsFn(ctx, search)
	}
	return jsonResponse(`{}`), nil
}

func (m *mockFootballClient) TeamByID(ctx context.Context, teamID string) (*football.Response, error) {
	if m.teamByIDFn != nil {
		return m.teamByIDFn(ctx, teamID)
	}
	return jsonResponse(`{}`), nil
}

func jsonResponse(body string) *football.Response {
	return &football.Response{StatusCode: 200, Body: []byte(body), ContentType: "application/json; charset=utf-8"}
}

type mockCalendarService struct {
	addEventFn      func(ctx context.Context, user *model.User, details calendar.EventDetails) (string, error)
	profileFn       func(ctx context.Context, user *model.User) (*calendar.Profile, error)
	checkFixturesFn func(ctx context.Context, user *model.User, gameIDs []any) (*calendar.FixtureCheck, error)
}

func (m *mockCalendarService) AddEvent(ctx context.Context, user *model.User, details calendar.EventDetails) (string, error) {
	if m.addEventFn != nil {
		return m.addEventFn(ctx, user, details)
	}
	return details.Summary, nil
}

func (m *mockCalendarService) Profile(ctx context.Context, user *model.User) (*calendar.Profile, error) {
	if m.profileFn != nil {
		return m.profileFn(ctx, user)
	}
	return &calendar.Profile{Name: "Unknown", Email: "No email found"}, nil
}

func (m *mockCalendarService) CheckFixtures(ctx context.Context, user *model.User, gameIDs []any) (*calendar.FixtureCheck, error) {
	if m.checkFixturesFn != nil {
		return m.checkFixturesFn(ctx, user, gameIDs)
	}
	return &calendar.FixtureCheck{Found: []any{}, Missing: gameIDs}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

type mockOAuthProvider struct {
	exchangeFn func(ctx context.Context, code string) (*auth.ProviderGrant, error)
}

func (m *mockOAuthProvider) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (m *mockOAuthProvider) Exchange(ctx context.Context, code string) (*auth.ProviderGrant, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return nil, errors.New("not configured")
}

// --- 統合テスト用のインメモリストア ---

// memoryStore はユーザー・セッション・レート制限記録をメモリ上に保持する。
type memoryStore struct {
	mu         sync.Mutex
	nextUserID int64
	users      map[int64]*model.User
	sessions   map[string]memorySession
	rateLimits []memoryRateLimit
}

type memorySession struct {
	data      []byte
	expiresAt time.Time
}

type memoryRateLimit struct {
	key string
	at  time.Time
}

func newMemoryStore(firstUserID int64) *memoryStore {
	return &memoryStore{
		nextUserID: firstUserID,
		users:      make(map[int64]*model.User),
		sessions:   make(map[string]memorySession),
	}
}

func (s *memoryStore) FindByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (s *memoryStore) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID == externalID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) Create(ctx context.Context, externalID, encryptedToken string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{ID: s.nextUserID, ExternalID: externalID, EncryptedAccessToken: encryptedToken}
	s.users[u.ID] = u
	s.nextUserID++
	copied := *u
	return &copied, nil
}

func (s *memoryStore) UpdateAccessToken(ctx context.Context, externalID, encryptedToken string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ExternalID == externalID {
			u.EncryptedAccessToken = encryptedToken
			copied := *u
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user %s not found", externalID)
}

// memorySessionRepo はmemoryStoreのセッション操作をrepository.SessionRepositoryとして公開する。
// UserRepositoryとメソッド名が衝突するため別の型に分ける。
type memorySessionRepo struct {
	store *memoryStore
}

func (r *memorySessionRepo) Create(ctx context.Context, session *model.Session, data []byte) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.sessions[session.ID] = memorySession{data: data, expiresAt: session.ExpiresAt}
	return nil
}

func (r *memorySessionRepo) FindData(ctx context.Context, id string) ([]byte, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	s, ok := r.store.sessions[id]
	if !ok || !s.expiresAt.After(time.Now()) {
		return nil, nil
	}
	return s.data, nil
}

func (r *memorySessionRepo) UpdateData(ctx context.Context, id string, data []byte) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if s, ok := r.store.sessions[id]; ok {
		s.data = data
		r.store.sessions[id] = s
	}
	return nil
}

func (r *memorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.sessions, id)
	return nil
}

func (r *memorySessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (s *memoryStore) CountSince(ctx context.Context, ip, endpoint string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ip + " " + endpoint
	n := 0
	for _, rl := range s.rateLimits {
		if rl.key == key && rl.at.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Record(ctx context.Context, ip, endpoint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimits = append(s.rateLimits, memoryRateLimit{key: ip + " " + endpoint, at: at})
	return nil
}

func (s *memoryStore) rateLimitKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.rateLimits))
	for _, rl := range s.rateLimits {
		keys = append(keys, strings.SplitN(rl.key, " ", 2)[1])
	}
	return keys
}

type mockLoginRecorder struct {
	outcomes []string
}

func (m *mockLoginRecorder) RecordRateLimitDecision(bool) {}
func (m *mockLoginRecorder) RecordDecryptionFailure() {}
func (m *mockLoginRecorder) RecordHTTPStatus(int) {}
func (m *mockLoginRecorder) RecordCleanupDeleted(string, int64) {}
func (m *mockLoginRecorder) RecordUpstreamLatency(string, int, time.Duration) {}
func (m *mockLoginRecorder) RecordLoginOutcome(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}
