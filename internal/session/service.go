package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/np-nandanpatil/adi/internal/auth"
	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/crypto"
	"github.com/np-nandanpatil/adi/internal/model"
)

var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrPasswordMismatch  = errors.New("passwords do not match")
	ErrEmailInUse        = errors.New("email already in use")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrInvalidUserID     = errors.New("user id does not match this account")
	ErrInvalidRefresh    = errors.New("invalid refresh token")
)

// Event notifies watchers of a sign-in or sign-out. Live subscriptions hang
// teardown off the signed-out transition.
type Event struct {
	AccountID string
	SignedIn  bool
}

type Service struct {
	identity backend.Identity
	store    backend.DocumentStore

	jwtSecret    string
	jwtIssuer    string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	userIDDigits int

	randUserID func(digits int) (model.PublicUserID, error)

	mu       sync.Mutex
	watchers []func(Event)
}

type ServiceOptions struct {
	JWTSecret    string
	JWTIssuer    string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	UserIDDigits int
}

func NewService(identity backend.Identity, store backend.DocumentStore, opts ServiceOptions) *Service {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	if opts.UserIDDigits < 10 || opts.UserIDDigits > 12 {
		opts.UserIDDigits = 10
	}
	return &Service{
		identity:     identity,
		store:        store,
		jwtSecret:    opts.JWTSecret,
		jwtIssuer:    opts.JWTIssuer,
		accessTTL:    opts.AccessTTL,
		refreshTTL:   opts.RefreshTTL,
		userIDDigits: opts.UserIDDigits,
		randUserID:   randomPublicUserID,
	}
}

// Watch registers a session-change listener, invoked on every sign-in and
// sign-out.
func (s *Service) Watch(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Service) notify(event Event) {
	s.mu.Lock()
	watchers := make([]func(Event), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(event)
	}
}

type RegisterInput struct {
	Name            string
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
}

type RegisterResult struct {
	PublicUserID model.PublicUserID
	// RedirectTo carries the new id and the fresh-registration marker so the
	// gate does not bounce the user off the login page before they see it.
	RedirectTo string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" || in.Email == "" || in.Phone == "" || in.Password == "" {
		return RegisterResult{}, ErrMissingFields
	}
	// Validated before any backend call.
	if in.Password != in.ConfirmPassword {
		return RegisterResult{}, ErrPasswordMismatch
	}

	account, err := s.identity.CreateAccount(ctx, in.Email, in.Password)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return RegisterResult{}, ErrEmailInUse
		}
		return RegisterResult{}, err
	}

	publicID, err := s.allocatePublicUserID(ctx)
	if err != nil {
		return RegisterResult{}, err
	}

	profile := model.Profile{
		AccountID:    account.ID,
		PublicUserID: publicID,
		Name:         in.Name,
		Phone:        in.Phone,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{
		PublicUserID: publicID,
		RedirectTo:   fmt.Sprintf("/login?userId=%s&new=true", publicID),
	}, nil
}

type LoginInput struct {
	UserID   string
	Email    string
	Password string
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Profile      model.Profile
}

// Login authenticates by credential first; only then is the claimed public
// user id checked against the caller's own profile. On a mismatch the fresh
// session is torn down immediately so a verified identity is never left
// signed in under an unverified claimed id.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.UserID = strings.TrimSpace(in.UserID)
	if in.Email == "" || in.Password == "" || in.UserID == "" {
		return LoginResult{}, ErrMissingFields
	}
	claimed, err := model.ParsePublicUserID(in.UserID)
	if err != nil {
		return LoginResult{}, ErrInvalidUserID
	}

	account, err := s.identity.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		if status.Code(err) == codes.Unauthenticated {
			return LoginResult{}, ErrInvalidCredential
		}
		return LoginResult{}, err
	}

	profile, err := s.store.GetProfile(ctx, account.ID)
	if err != nil {
		_ = s.identity.EndSession(ctx, account.ID)
		return LoginResult{}, err
	}
	if profile.PublicUserID != claimed {
		_ = s.identity.EndSession(ctx, account.ID)
		return LoginResult{}, ErrInvalidUserID
	}

	accessToken, refreshToken, err := s.issueTokens(ctx, account, profile)
	if err != nil {
		return LoginResult{}, err
	}

	s.notify(Event{AccountID: account.ID, SignedIn: true})
	return LoginResult{AccessToken: accessToken, RefreshToken: refreshToken, Profile: profile}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	if refreshToken == "" {
		return LoginResult{}, ErrInvalidRefresh
	}
	tokenHash := crypto.HashToken(refreshToken)
	sess, err := s.store.GetRefreshSession(ctx, tokenHash)
	if err != nil {
		if backend.IsNotFound(err) {
			return LoginResult{}, ErrInvalidRefresh
		}
		return LoginResult{}, err
	}
	if sess.RevokedAt != nil || sess.ExpiresAt.Before(time.Now().UTC()) {
		return LoginResult{}, ErrInvalidRefresh
	}

	profile, err := s.store.GetProfile(ctx, sess.AccountID)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.store.RevokeRefreshSession(ctx, sess.ID, time.Now().UTC()); err != nil {
		return LoginResult{}, err
	}

	account := model.Account{ID: sess.AccountID}
	accessToken, newRefresh, err := s.issueTokens(ctx, account, profile)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{AccessToken: accessToken, RefreshToken: newRefresh, Profile: profile}, nil
}

func (s *Service) Logout(ctx context.Context, accountID string) error {
	err := s.identity.EndSession(ctx, accountID)
	s.notify(Event{AccountID: accountID, SignedIn: false})
	return err
}

func (s *Service) ParseAccessToken(token string) (*auth.Claims, error) {
	return auth.ParseToken(s.jwtSecret, token)
}

func (s *Service) issueTokens(ctx context.Context, account model.Account, profile model.Profile) (string, string, error) {
	accessToken, err := auth.NewAccessToken(s.jwtSecret, s.jwtIssuer, s.accessTTL, auth.Claims{
		AccountID:    account.ID,
		PublicUserID: profile.PublicUserID.String(),
		Name:         profile.Name,
	})
	if err != nil {
		return "", "", err
	}

	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	sess := model.RefreshSession{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.store.CreateRefreshSession(ctx, sess); err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}
