package backend

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// The backend error taxonomy rides on gRPC status codes, the vocabulary the
// hosted document store reports: Unavailable and ResourceExhausted are
// transient, PermissionDenied is terminal, everything else propagates as-is.

func Unavailable(msg string) error {
	return status.Error(codes.Unavailable, msg)
}

func ResourceExhausted(msg string) error {
	return status.Error(codes.ResourceExhausted, msg)
}

func PermissionDenied(msg string) error {
	return status.Error(codes.PermissionDenied, msg)
}

func NotFound(msg string) error {
	return status.Error(codes.NotFound, msg)
}

func AlreadyExists(msg string) error {
	return status.Error(codes.AlreadyExists, msg)
}

func Unauthenticated(msg string) error {
	return status.Error(codes.Unauthenticated, msg)
}

// Retryable reports whether an error is a transient backend failure worth
// another attempt.
func Retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func IsPermissionDenied(err error) bool {
	return status.Code(err) == codes.PermissionDenied
}

func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ErrOffline fails fast before any attempt when the transport reports the
// host offline.
var ErrOffline = status.Error(codes.Unavailable, "offline")

func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}
