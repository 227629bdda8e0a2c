package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/matchday/internal/model"
	"github.com/hitoshi/matchday/internal/repository"
)

// errNoPrincipalRef はセッションdataにユーザー参照が含まれないことを示す。
// ログアウト処理の途中で破棄に失敗したセッションがこの状態になる。
var errNoPrincipalRef = errors.New("session has no principal reference")

// principalRef はセッションに保存するプリンシパル参照。user_id以外は保存しない。
type principalRef struct {
	UserID *int64 `json:"user_id,omitempty"`
}

// SerializePrincipal はユーザーをセッション保存用の参照 {"user_id": N} に変換する。
func SerializePrincipal(user *model.User) ([]byte, error) {
	if user == nil {
		return nil, errors.New("cannot serialize nil user")
	}
	id := user.ID
	return json.Marshal(principalRef{UserID: &id})
}

// DeserializePrincipal はセッションdataからuser_idを取り出す。
func DeserializePrincipal(data []byte) (int64, error) {
	var ref principalRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return 0, fmt.Errorf("failed to decode session data: %w", err)
	}
	if ref.UserID == nil {
		return 0, errNoPrincipalRef
	}
	return *ref.UserID, nil
}

// SessionManager はセッションの発行・参照・破棄を管理する。
// 有効期限は発行時に固定され、参照によって延長されない。
type SessionManager struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	maxAge   time.Duration
	now      func() time.Time
}

// NewSessionManager はSessionManagerを生成する。
func NewSessionManager(sessions repository.SessionRepository, users repository.UserRepository, maxAge time.Duration) *SessionManager {
	return &SessionManager{
		sessions: sessions,
		users:    users,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// MaxAge はセッションの有効期間を返す。
func (m *SessionManager) MaxAge() time.Duration {
	return m.maxAge
}

// Login はユーザーに対する新しいセッションを発行する。
func (m *SessionManager) Login(ctx context.Context, user *model.User) (*model.Session, error) {
	data, err := SerializePrincipal(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrLoginFailed, err)
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate session ID: %w", model.ErrLoginFailed, err)
	}

	now := m.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: now.Add(m.maxAge),
		CreatedAt: now,
	}

	if err := m.sessions.Create(ctx, session, data); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrLoginFailed, err)
	}

	return session, nil
}

// PrincipalID はセッションに保存されたuser_idを返す。
// セッションが存在しない、期限切れ、またはユーザー参照を持たない場合はfalseを返す。
func (m *SessionManager) PrincipalID(ctx context.Context, sessionID string) (int64, bool, error) {
	if sessionID == "" {
		return 0, false, nil
	}

	data, err := m.sessions.FindData(ctx, sessionID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load session: %w", err)
	}
	if data == nil {
		return 0, false, nil
	}

	userID, err := DeserializePrincipal(data)
	if errors.Is(err, errNoPrincipalRef) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return userID, true, nil
}

// Principal はセッションに紐付くユーザーを返す。
// セッションが無効な場合や、参照先のユーザーが存在しない場合はnil, nilを返す。
func (m *SessionManager) Principal(ctx context.Context, sessionID string) (*model.User, error) {
	userID, ok, err := m.PrincipalID(ctx, sessionID)
	if err != nil || !ok {
		return nil, err
	}

	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	if user == nil {
		slog.Debug("session references missing user", slog.Int64("user_id", userID))
		return nil, nil
	}
	return user, nil
}

// Logout はセッションとユーザーの紐付けを解除したうえでセッションを破棄する。
// いずれかの段階で失敗した場合は以降の処理を行わずにエラーを返す。
func (m *SessionManager) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := m.sessions.UpdateData(ctx, sessionID, []byte(`{}`)); err != nil {
		return fmt.Errorf("%w: %w", model.ErrLogoutFailed, err)
	}

	if err := m.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %w", model.ErrSessionDestroy, err)
	}

	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
