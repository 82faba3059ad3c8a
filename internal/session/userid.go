package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/model"
)

const userIDAttempts = 5

var ErrUserIDExhausted = errors.New("could not allocate a unique user id")

// randomPublicUserID draws a uniform value with exactly `digits` decimal
// digits, so the printed form never has a leading zero.
func randomPublicUserID(digits int) (model.PublicUserID, error) {
	if digits < 10 || digits > 12 {
		return 0, fmt.Errorf("user id digits out of bounds: %d", digits)
	}
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	high := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	span := new(big.Int).Sub(high, low)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return model.PublicUserID(new(big.Int).Add(n, low).Int64()), nil
}

// allocatePublicUserID generates candidates and re-checks each against the
// profile store until one is unclaimed. No id is accepted unchecked.
func (s *Service) allocatePublicUserID(ctx context.Context) (model.PublicUserID, error) {
	for i := 0; i < userIDAttempts; i++ {
		candidate, err := s.randUserID(s.userIDDigits)
		if err != nil {
			return 0, err
		}
		_, err = s.store.ProfileByPublicID(ctx, candidate)
		if backend.IsNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return 0, err
		}
		// Claimed, draw again.
	}
	return 0, ErrUserIDExhausted
}
