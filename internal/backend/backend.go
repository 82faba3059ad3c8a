// Package backend is the capability surface over the hosted identity and
// document-store collaborators. The orchestration packages (supervisor,
// session, live, history) only see these interfaces; concrete bindings live
// in the postgres and redislive subpackages.
package backend

import (
	"context"
	"time"

	"github.com/np-nandanpatil/adi/internal/model"
)

// Identity is the account/credential side of the backend.
type Identity interface {
	// CreateAccount registers a credential-bound account. Fails with
	// codes.AlreadyExists when the email is taken.
	CreateAccount(ctx context.Context, email, password string) (model.Account, error)
	// Authenticate verifies email+password and returns the account. Fails
	// with codes.Unauthenticated on a bad credential.
	Authenticate(ctx context.Context, email, password string) (model.Account, error)
	// EndSession revokes every refresh session held by the account.
	EndSession(ctx context.Context, accountID string) error
}

// DocumentStore is the profile / reading / setup-request side.
type DocumentStore interface {
	PutProfile(ctx context.Context, profile model.Profile) error
	GetProfile(ctx context.Context, accountID string) (model.Profile, error)
	// ProfileByPublicID backs the uniqueness re-check during registration.
	// Returns codes.NotFound when the id is unclaimed.
	ProfileByPublicID(ctx context.Context, id model.PublicUserID) (model.Profile, error)

	// QueryReadings returns readings owned by ownerID. A zero lowerBound
	// means no lower time bound (all-time query).
	QueryReadings(ctx context.Context, ownerID model.PublicUserID, lowerBound time.Time, order SortOrder) ([]model.SensorReading, error)

	CreateSetupRequest(ctx context.Context, req model.SetupRequest) error

	CreateRefreshSession(ctx context.Context, session model.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error
	RevokeRefreshSessionsByAccount(ctx context.Context, accountID string, revokedAt time.Time) error
}

// LiveSource opens push subscriptions for the most recent reading of an
// owner. Implementations deliver an initial snapshot (possibly empty) and
// then every subsequent push until the handle is cancelled.
type LiveSource interface {
	SubscribeLatestReading(ctx context.Context, ownerID model.PublicUserID, onData func(model.SensorReading, bool), onError func(error)) (Handle, error)
}

// Handle cancels a live subscription. Cancel is idempotent.
type Handle interface {
	Cancel()
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Transport models the network layer underneath the bindings: the OS-level
// online signal plus the disable/enable reset the supervisor performs
// between retries.
type Transport interface {
	Online() bool
	Enable(ctx context.Context) error
	Disable(ctx context.Context)
	// Reset drops and re-establishes connectivity before a retry attempt.
	Reset(ctx context.Context) error
}
