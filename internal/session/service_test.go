package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/crypto"
	"github.com/np-nandanpatil/adi/internal/model"
)

type fakeIdentity struct {
	accounts     map[string]model.Account
	passwords    map[string]string
	createCalls  int
	authCalls    int
	endedCalls   int
	endedAccount string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		accounts:  map[string]model.Account{},
		passwords: map[string]string{},
	}
}

func (f *fakeIdentity) CreateAccount(_ context.Context, email, password string) (model.Account, error) {
	f.createCalls++
	if _, ok := f.accounts[email]; ok {
		return model.Account{}, backend.AlreadyExists("email in use")
	}
	account := model.Account{ID: "acct-" + email, Email: email}
	f.accounts[email] = account
	f.passwords[email] = password
	return account, nil
}

func (f *fakeIdentity) Authenticate(_ context.Context, email, password string) (model.Account, error) {
	f.authCalls++
	account, ok := f.accounts[email]
	if !ok || f.passwords[email] != password {
		return model.Account{}, backend.Unauthenticated("bad credential")
	}
	return account, nil
}

func (f *fakeIdentity) EndSession(_ context.Context, accountID string) error {
	f.endedCalls++
	f.endedAccount = accountID
	return nil
}

type fakeStore struct {
	profiles map[string]model.Profile
	byPublic map[model.PublicUserID]model.Profile
	sessions map[string]model.RefreshSession
	requests []model.SetupRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: map[string]model.Profile{},
		byPublic: map[model.PublicUserID]model.Profile{},
		sessions: map[string]model.RefreshSession{},
	}
}

func (f *fakeStore) PutProfile(_ context.Context, profile model.Profile) error {
	f.profiles[profile.AccountID] = profile
	f.byPublic[profile.PublicUserID] = profile
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, accountID string) (model.Profile, error) {
	profile, ok := f.profiles[accountID]
	if !ok {
		return model.Profile{}, backend.NotFound("profile not found")
	}
	return profile, nil
}

func (f *fakeStore) ProfileByPublicID(_ context.Context, id model.PublicUserID) (model.Profile, error) {
	profile, ok := f.byPublic[id]
	if !ok {
		return model.Profile{}, backend.NotFound("unclaimed")
	}
	return profile, nil
}

func (f *fakeStore) QueryReadings(context.Context, model.PublicUserID, time.Time, backend.SortOrder) ([]model.SensorReading, error) {
	return nil, nil
}

func (f *fakeStore) CreateSetupRequest(_ context.Context, req model.SetupRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeStore) CreateRefreshSession(_ context.Context, sess model.RefreshSession) error {
	f.sessions[sess.TokenHash] = sess
	return nil
}

func (f *fakeStore) GetRefreshSession(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	sess, ok := f.sessions[tokenHash]
	if !ok {
		return model.RefreshSession{}, backend.NotFound("no session")
	}
	return sess, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, sessionID string, revokedAt time.Time) error {
	for hash, sess := range f.sessions {
		if sess.ID == sessionID {
			sess.RevokedAt = &revokedAt
			f.sessions[hash] = sess
		}
	}
	return nil
}

func (f *fakeStore) RevokeRefreshSessionsByAccount(_ context.Context, accountID string, revokedAt time.Time) error {
	for hash, sess := range f.sessions {
		if sess.AccountID == accountID {
			sess.RevokedAt = &revokedAt
			f.sessions[hash] = sess
		}
	}
	return nil
}

func newTestService() (*Service, *fakeIdentity, *fakeStore) {
	identity := newFakeIdentity()
	store := newFakeStore()
	svc := NewService(identity, store, ServiceOptions{
		JWTSecret:    "test-secret",
		JWTIssuer:    "test",
		UserIDDigits: 10,
	})
	return svc, identity, store
}

func registerInput() RegisterInput {
	return RegisterInput{
		Name:            "Asha",
		Email:           "asha@example.com",
		Phone:           "5551234567",
		Password:        "secret",
		ConfirmPassword: "secret",
	}
}

func TestRegisterPasswordMismatchFailsBeforeBackend(t *testing.T) {
	svc, identity, _ := newTestService()

	in := registerInput()
	in.ConfirmPassword = "other"
	_, err := svc.Register(context.Background(), in)
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected password mismatch, got %v", err)
	}
	if identity.createCalls != 0 {
		t.Fatalf("expected no backend call, got %d", identity.createCalls)
	}
}

func TestRegisterGeneratesBoundedUniqueUserID(t *testing.T) {
	svc, _, store := newTestService()

	result, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	if got := len(result.PublicUserID.String()); got != 10 {
		t.Fatalf("expected 10 digit user id, got %d digits", got)
	}
	profile, err := store.ProfileByPublicID(context.Background(), result.PublicUserID)
	if err != nil {
		t.Fatalf("expected stored profile: %v", err)
	}
	if profile.Name != "Asha" || profile.PublicUserID != result.PublicUserID {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if !strings.Contains(result.RedirectTo, "userId="+result.PublicUserID.String()) || !strings.Contains(result.RedirectTo, "new=true") {
		t.Fatalf("redirect target missing fresh-registration marker: %s", result.RedirectTo)
	}
}

func TestRegisterRetriesOnUserIDCollision(t *testing.T) {
	svc, _, store := newTestService()

	taken := model.PublicUserID(1111111111)
	free := model.PublicUserID(2222222222)
	_ = store.PutProfile(context.Background(), model.Profile{AccountID: "other", PublicUserID: taken})

	draws := 0
	svc.randUserID = func(int) (model.PublicUserID, error) {
		draws++
		if draws == 1 {
			return taken, nil
		}
		return free, nil
	}

	result, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	if result.PublicUserID != free {
		t.Fatalf("expected collision to be rejected, got %s", result.PublicUserID)
	}
	if draws != 2 {
		t.Fatalf("expected 2 draws, got %d", draws)
	}
}

func TestRegisterEmailInUse(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("first register error: %v", err)
	}
	_, err := svc.Register(context.Background(), registerInput())
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected email in use, got %v", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _ := newTestService()

	reg, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("register error: %v", err)
	}

	var events []Event
	svc.Watch(func(e Event) { events = append(events, e) })

	result, err := svc.Login(context.Background(), LoginInput{
		UserID:   reg.PublicUserID.String(),
		Email:    "asha@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("login error: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatalf("expected tokens")
	}
	claims, err := svc.ParseAccessToken(result.AccessToken)
	if err != nil {
		t.Fatalf("token parse error: %v", err)
	}
	if claims.PublicUserID != reg.PublicUserID.String() {
		t.Fatalf("expected claims to carry public user id")
	}
	if len(events) != 1 || !events[0].SignedIn {
		t.Fatalf("expected one signed-in event, got %+v", events)
	}
}

func TestLoginUserIDMismatchSignsOut(t *testing.T) {
	svc, identity, _ := newTestService()

	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("register error: %v", err)
	}

	_, err := svc.Login(context.Background(), LoginInput{
		UserID:   "9999999999",
		Email:    "asha@example.com",
		Password: "secret",
	})
	if !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected invalid user id, got %v", err)
	}
	if identity.endedCalls != 1 {
		t.Fatalf("expected session to be terminated, got %d end calls", identity.endedCalls)
	}
}

func TestLoginBadPassword(t *testing.T) {
	svc, _, _ := newTestService()

	reg, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	_, err = svc.Login(context.Background(), LoginInput{
		UserID:   reg.PublicUserID.String(),
		Email:    "asha@example.com",
		Password: "wrong",
	})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	svc, _, store := newTestService()

	reg, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	login, err := svc.Login(context.Background(), LoginInput{
		UserID:   reg.PublicUserID.String(),
		Email:    "asha@example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("login error: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatalf("expected refresh token rotation")
	}

	old := store.sessions[crypto.HashToken(login.RefreshToken)]
	if old.RevokedAt == nil {
		t.Fatalf("expected old session revoked")
	}
	if _, err := svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrInvalidRefresh) {
		t.Fatalf("expected revoked token rejection, got %v", err)
	}
}

func TestLogoutNotifiesWatchers(t *testing.T) {
	svc, identity, _ := newTestService()

	var events []Event
	svc.Watch(func(e Event) { events = append(events, e) })

	if err := svc.Logout(context.Background(), "acct-1"); err != nil {
		t.Fatalf("logout error: %v", err)
	}
	if identity.endedCalls != 1 {
		t.Fatalf("expected end session call")
	}
	if len(events) != 1 || events[0].SignedIn {
		t.Fatalf("expected signed-out event, got %+v", events)
	}
}

func TestRandomPublicUserIDDigits(t *testing.T) {
	for digits := 10; digits <= 12; digits++ {
		for i := 0; i < 20; i++ {
			id, err := randomPublicUserID(digits)
			if err != nil {
				t.Fatalf("generate error: %v", err)
			}
			if got := len(id.String()); got != digits {
				t.Fatalf("expected %d digits, got %d (%s)", digits, got, id)
			}
		}
	}
	if _, err := randomPublicUserID(9); err == nil {
		t.Fatalf("expected digit bound rejection")
	}
}
