package calendar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/people/v1"

	"github.com/hitoshi/matchday/internal/model"
	"github.com/hitoshi/matchday/internal/security"
)

// --- モック定義 ---

type mockGoogleAPI struct {
	insertEventFn         func(ctx context.Context, accessToken string, event *gcalendar.Event) (*gcalendar.Event, error)
	countEventsByGameIDFn func(ctx context.Context, accessToken, gameID string) (int, error)
	getProfileFn          func(ctx context.Context, accessToken string) (*people.Person, error)
}

func (m *mockGoogleAPI) InsertEvent(ctx context.Context, accessToken string, event *gcalendar.Event) (*gcalendar.Event, error) {
	if m.insertEventFn != nil {
		return m.insertEventFn(ctx, accessToken, event)
	}
	return event, nil
}

func (m *mockGoogleAPI) CountEventsByGameID(ctx context.Context, accessToken, gameID string) (int, error) {
	if m.countEventsByGameIDFn != nil {
		return m.countEventsByGameIDFn(ctx, accessToken, gameID)
	}
	return 0, nil
}

func (m *mockGoogleAPI) GetProfile(ctx context.Context, accessToken string) (*people.Person, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, accessToken)
	}
	return &people.Person{}, nil
}

type countingDecryptionRecorder struct {
	failures int
}

func (m *countingDecryptionRecorder) RecordLoginOutcome(string) {}
func (m *countingDecryptionRecorder) RecordRateLimitDecision(bool) {}
func (m *countingDecryptionRecorder) RecordHTTPStatus(int) {}
func (m *countingDecryptionRecorder) RecordCleanupDeleted(string, int64) {}
func (m *countingDecryptionRecorder) RecordUpstreamLatency(string, int, time.Duration) {}
func (m *countingDecryptionRecorder) RecordDecryptionFailure() {
	m.failures++
}

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCipher(t *testing.T) *security.TokenCipher {
	t.Helper()
	c, err := security.NewTokenCipher(testKey)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	return c
}

// newTestUser は平文トークンを暗号化して保持するユーザーを返す。
func newTestUser(t *testing.T, cipher *security.TokenCipher, token string) *model.User {
	t.Helper()
	envelope, err := cipher.Encrypt(token)
	if err != nil {
		t.Fatalf("failed to encrypt token: %v", err)
	}
	return &model.User{ID: 7, ExternalID: "ext123", EncryptedAccessToken: envelope}
}

func validDetails() EventDetails {
	return EventDetails{
		Summary:       "Arsenal vs Chelsea",
		Description:   "Premier League",
		StartDateTime: "2026-10-18T14:00:00Z",
		EndDateTime:   "2026-10-18T16:00:00Z",
		GameID:        "123",
	}
}

func assertAPIErrorCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != wantCode {
		t.Errorf("code = %q, want %q", apiErr.Code, wantCode)
	}
}

// --- AddEvent ---

func TestService_AddEvent(t *testing.T) {
	cipher := newTestCipher(t)
	user := newTestUser(t, cipher, "google-token")

	var gotToken string
	var gotEvent *gcalendar.Event
	api := &mockGoogleAPI{
		insertEventFn: func(ctx context.Context, accessToken string, event *gcalendar.Event) (*gcalendar.Event, error) {
			gotToken = accessToken
			gotEvent = event
			return &gcalendar.Event{Summary: event.Summary}, nil
		},
	}
	svc := NewService(api, cipher, security.NewTextSanitizer(), nil)

	details := validDetails()
	details.Summary = "<b>Arsenal</b> vs Chelsea"
	summary, err := svc.AddEvent(context.Background(), user, details)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotToken != "google-token" {
		t.Errorf("access token = %q, want decrypted token", gotToken)
	}
	if summary != "Arsenal vs Chelsea" {
		t.Errorf("summary = %q, want sanitized summary", summary)
	}
	if gotEvent.Start.TimeZone != "UTC" || gotEvent.End.TimeZone != "UTC" {
		t.Errorf("time zones = %q/%q, want UTC", gotEvent.Start.TimeZone, gotEvent.End.TimeZone)
	}
	if gotEvent.Start.DateTime != details.StartDateTime || gotEvent.End.DateTime != details.EndDateTime {
		t.Errorf("times = %q/%q", gotEvent.Start.DateTime, gotEvent.End.DateTime)
	}
	private := gotEvent.ExtendedProperties.Private
	if private["appSource"] != "matchday" || private["gameId"] != "123" {
		t.Errorf("private properties = %v", private)
	}
}

func TestService_AddEvent_MissingField(t *testing.T) {
	cipher := newTestCipher(t)
	user := newTestUser(t, cipher, "google-token")
	svc := NewService(&mockGoogleAPI{
		insertEventFn: func(ctx context.Context, accessToken string, event *gcalendar.Event) (*gcalendar.Event, error) {
			t.Error("InsertEvent should not be called")
			return nil, nil
		},
	}, cipher, security.NewTextSanitizer(), nil)

	fields := []func(*EventDetails){
		func(d *EventDetails) { d.Summary = "" },
		func(d *EventDetails) { d.Description = "" },
		func(d *EventDetails) { d.StartDateTime = "" },
		func(d *EventDetails) { d.EndDateTime = "" },
		func(d *EventDetails) { d.GameID = "" },
	}
	for _, mutate := range fields {
		details := validDetails()
		mutate(&details)
		_, err := svc.AddEvent(context.Background(), user, details)
		assertAPIErrorCode(t, err, model.ErrCodeInvalidEvent)
	}
}

func TestService_AddEvent_NoToken(t *testing.T) {
	svc := NewService(&mockGoogleAPI{}, newTestCipher(t), security.NewTextSanitizer(), nil)

	_, err := svc.AddEvent(context.Background(), &model.User{ID: 7}, validDetails())
	assertAPIErrorCode(t, err, model.ErrCodeMissingAccessToken)
}

func TestService_AddEvent_DecryptionFailure(t *testing.T) {
	other, err := security.NewTokenCipher(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	user := newTestUser(t, other, "google-token")

	recorder := &countingDecryptionRecorder{}
	svc := NewService(&mockGoogleAPI{}, newTestCipher(t), security.NewTextSanitizer(), recorder)

	_, err = svc.AddEvent(context.Background(), user, validDetails())
	if !errors.Is(err, security.ErrDecryption) {
		t.Fatalf("error = %v, want ErrDecryption", err)
	}
	if recorder.failures != 1 {
		t.Errorf("decryption failures = %d, want 1", recorder.failures)
	}
}

func TestService_AddEvent_UpstreamError(t *testing.T) {
	cipher := newTestCipher(t)
	svc := NewService(&mockGoogleAPI{
		insertEventFn: func(ctx context.Context, accessToken string, event *gcalendar.Event) (*gcalendar.Event, error) {
			return nil, errors.New("quota exceeded")
		},
	}, cipher, security.NewTextSanitizer(), nil)

	_, err := svc.AddEvent(context.Background(), newTestUser(t, cipher, "tok"), validDetails())
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %T", err)
	}
	if upstream.Detail() != "quota exceeded" {
		t.Errorf("Detail() = %q", upstream.Detail())
	}
}

// --- Profile ---

func TestService_Profile(t *testing.T) {
	cipher := newTestCipher(t)
	tests := []struct {
		name   string
		person *people.Person
		want   Profile
	}{
		{
			name: "full profile",
			person: &people.Person{
				Names:          []*people.Name{{DisplayName: "Taro"}},
				EmailAddresses: []*people.EmailAddress{{Value: "taro@example.com"}},
			},
			want: Profile{Name: "Taro", Email: "taro@example.com"},
		},
		{
			name:   "empty profile",
			person: &people.Person{},
			want:   Profile{Name: "Unknown", Email: "No email found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&mockGoogleAPI{
				getProfileFn: func(ctx context.Context, accessToken string) (*people.Person, error) {
					return tt.person, nil
				},
			}, cipher, security.NewTextSanitizer(), nil)

			got, err := svc.Profile(context.Background(), newTestUser(t, cipher, "tok"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("Profile() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

// --- CheckFixtures ---

func TestService_CheckFixtures_PreservesOrder(t *testing.T) {
	cipher := newTestCipher(t)
	var mu sync.Mutex
	var queried []string
	svc := NewService(&mockGoogleAPI{
		countEventsByGameIDFn: func(ctx context.Context, accessToken, gameID string) (int, error) {
			mu.Lock()
			queried = append(queried, gameID)
			mu.Unlock()
			if gameID == "2" || gameID == "abc" {
				return 1, nil
			}
			return 0, nil
		},
	}, cipher, security.NewTextSanitizer(), nil)

	input := []any{float64(1), float64(2), float64(3), "abc"}
	got, err := svc.CheckFixtures(context.Background(), newTestUser(t, cipher, "tok"), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queried) != 4 {
		t.Errorf("queried = %v, want 4 lookups", queried)
	}
	wantFound := []any{float64(2), "abc"}
	wantMissing := []any{float64(1), float64(3)}
	if !equalAny(got.Found, wantFound) {
		t.Errorf("Found = %v, want %v", got.Found, wantFound)
	}
	if !equalAny(got.Missing, wantMissing) {
		t.Errorf("Missing = %v, want %v", got.Missing, wantMissing)
	}
}

func TestService_CheckFixtures_EmptyInput(t *testing.T) {
	svc := NewService(&mockGoogleAPI{}, newTestCipher(t), security.NewTextSanitizer(), nil)

	_, err := svc.CheckFixtures(context.Background(), &model.User{ID: 7}, nil)
	assertAPIErrorCode(t, err, model.ErrCodeInvalidGameIDs)
}

func TestService_CheckFixtures_UpstreamError(t *testing.T) {
	cipher := newTestCipher(t)
	svc := NewService(&mockGoogleAPI{
		countEventsByGameIDFn: func(ctx context.Context, accessToken, gameID string) (int, error) {
			if gameID == "2" {
				return 0, errors.New("backend error")
			}
			return 0, nil
		},
	}, cipher, security.NewTextSanitizer(), nil)

	_, err := svc.CheckFixtures(context.Background(), newTestUser(t, cipher, "tok"), []any{float64(1), float64(2)})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamError, got %T (%v)", err, err)
	}
}

func TestGameIDString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{in: "123", want: "123"},
		{in: float64(1234567), want: "1234567"},
		{in: nil, want: ""},
		{in: true, want: "true"},
	}

	for _, tt := range tests {
		if got := GameIDString(tt.in); got != tt.want {
			t.Errorf("GameIDString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func equalAny(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
