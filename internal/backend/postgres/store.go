// Package postgres binds the backend capability surface to PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/crypto"
	"github.com/np-nandanpatil/adi/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *Store) CreateAccount(ctx context.Context, email, password string) (model.Account, error) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return model.Account{}, err
	}
	now := time.Now().UTC()
	account := model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.Email, account.PasswordHash, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.Account{}, backend.AlreadyExists("email already registered")
		}
		return model.Account{}, mapError(err)
	}
	return account, nil
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (model.Account, error) {
	var account model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email)
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Account{}, backend.Unauthenticated("invalid credential")
	}
	if err != nil {
		return model.Account{}, mapError(err)
	}
	if err := crypto.CheckPassword(account.PasswordHash, password); err != nil {
		return model.Account{}, backend.Unauthenticated("invalid credential")
	}
	return account, nil
}

func (s *Store) EndSession(ctx context.Context, accountID string) error {
	return s.RevokeRefreshSessionsByAccount(ctx, accountID, time.Now().UTC())
}

func (s *Store) PutProfile(ctx context.Context, profile model.Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (account_id, public_user_id, name, phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE
		SET public_user_id = EXCLUDED.public_user_id, name = EXCLUDED.name, phone = EXCLUDED.phone
	`, profile.AccountID, int64(profile.PublicUserID), profile.Name, profile.Phone, profile.CreatedAt)
	return mapError(err)
}

func (s *Store) GetProfile(ctx context.Context, accountID string) (model.Profile, error) {
	var profile model.Profile
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, public_user_id, name, phone, created_at
		FROM profiles
		WHERE account_id = $1
	`, accountID)
	err := row.Scan(&profile.AccountID, &profile.PublicUserID, &profile.Name, &profile.Phone, &profile.CreatedAt)
	if err != nil {
		return model.Profile{}, mapError(err)
	}
	return profile, nil
}

func (s *Store) ProfileByPublicID(ctx context.Context, id model.PublicUserID) (model.Profile, error) {
	var profile model.Profile
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, public_user_id, name, phone, created_at
		FROM profiles
		WHERE public_user_id = $1
	`, int64(id))
	err := row.Scan(&profile.AccountID, &profile.PublicUserID, &profile.Name, &profile.Phone, &profile.CreatedAt)
	if err != nil {
		return model.Profile{}, mapError(err)
	}
	return profile, nil
}

func (s *Store) QueryReadings(ctx context.Context, ownerID model.PublicUserID, lowerBound time.Time, order backend.SortOrder) ([]model.SensorReading, error) {
	query := `
		SELECT owner_id, recorded_at, temperature, humidity, soil_moisture
		FROM sensor_readings
		WHERE owner_id = $1
	`
	args := []any{int64(ownerID)}
	if !lowerBound.IsZero() {
		query += ` AND recorded_at >= $2`
		args = append(args, lowerBound)
	}
	if order == backend.SortDesc {
		query += ` ORDER BY recorded_at DESC`
	} else {
		query += ` ORDER BY recorded_at ASC`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var readings []model.SensorReading
	for rows.Next() {
		var reading model.SensorReading
		if err := rows.Scan(&reading.OwnerID, &reading.Timestamp, &reading.Temperature, &reading.Humidity, &reading.SoilMoisture); err != nil {
			return nil, mapError(err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return readings, nil
}

func (s *Store) LatestReading(ctx context.Context, ownerID model.PublicUserID) (model.SensorReading, error) {
	var reading model.SensorReading
	row := s.pool.QueryRow(ctx, `
		SELECT owner_id, recorded_at, temperature, humidity, soil_moisture
		FROM sensor_readings
		WHERE owner_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, int64(ownerID))
	err := row.Scan(&reading.OwnerID, &reading.Timestamp, &reading.Temperature, &reading.Humidity, &reading.SoilMoisture)
	if err != nil {
		return model.SensorReading{}, mapError(err)
	}
	return reading, nil
}

func (s *Store) InsertReading(ctx context.Context, reading model.SensorReading) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sensor_readings (owner_id, recorded_at, temperature, humidity, soil_moisture)
		VALUES ($1, $2, $3, $4, $5)
	`, int64(reading.OwnerID), reading.Timestamp, reading.Temperature, reading.Humidity, reading.SoilMoisture)
	return mapError(err)
}

func (s *Store) CreateSetupRequest(ctx context.Context, req model.SetupRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO setup_requests (id, account_id, address, preferred_date, notes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, req.ID, req.AccountID, req.Address, req.PreferredDate, req.Notes, req.Status, req.CreatedAt)
	return mapError(err)
}

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_token_sessions (id, account_id, token_hash, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session.ID, session.AccountID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt)
	return mapError(err)
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, account_id, token_hash, created_at, expires_at, revoked_at
		FROM refresh_token_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.AccountID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	if err != nil {
		return model.RefreshSession{}, mapError(err)
	}
	return session, nil
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_token_sessions SET revoked_at = $1 WHERE id = $2`, revokedAt, sessionID)
	return mapError(err)
}

func (s *Store) RevokeRefreshSessionsByAccount(ctx context.Context, accountID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_token_sessions
		SET revoked_at = $1
		WHERE account_id = $2 AND revoked_at IS NULL
	`, revokedAt, accountID)
	return mapError(err)
}

// mapError translates driver failures into the status-code vocabulary the
// orchestration layer retries on. Connection-class (08xxx), shutdown-class
// (57xxx) and resource-class (53xxx) SQLSTATEs are the retryable ones.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return backend.NotFound("not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return backend.AlreadyExists(pgErr.Message)
		case pgErr.Code == "42501":
			return backend.PermissionDenied(pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"):
			return backend.Unavailable(pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "53"):
			return backend.ResourceExhausted(pgErr.Message)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.Unavailable("backend timeout")
	}
	return err
}
