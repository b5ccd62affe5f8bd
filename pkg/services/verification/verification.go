/*
2021 © Postgres.ai
*/

// Package verification issues single-use six-digit codes.
package verification

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-password/password"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"
)

// Purpose separates codes issued for different flows.
type Purpose string

// Code purposes.
const (
	PurposeEmail    Purpose = "email"
	PurposeRecovery Purpose = "recovery"
)

// Code defaults.
const (
	CodeLength = 6
	DefaultTTL = 5 * time.Minute

	// MaxFailedAttempts invalidates a code after that many wrong guesses.
	MaxFailedAttempts = 5
)

// ErrInvalidCode means the code is wrong, expired or already used.
var ErrInvalidCode = errors.New("invalid or expired code")

// Sender delivers codes to users.
type Sender interface {
	SendCode(email, code string) error
}

// Service defines a verification code service.
type Service struct {
	store    Store
	sender   Sender
	ttl      time.Duration
	generate func() (string, error)
}

// NewService creates a new verification service.
func NewService(store Store, sender Sender, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Service{
		store:    store,
		sender:   sender,
		ttl:      ttl,
		generate: generateCode,
	}
}

func generateCode() (string, error) {
	return password.Generate(CodeLength, CodeLength, 0, false, true)
}

func storeKey(purpose Purpose, subject string) string {
	return string(purpose) + ":" + strings.ToLower(strings.TrimSpace(subject))
}

// Issue generates a code for the subject, stores it and sends it to the e-mail.
// A new code replaces the previous one.
func (s *Service) Issue(ctx context.Context, purpose Purpose, subject, email string) error {
	code, err := s.generate()
	if err != nil {
		return errors.Wrap(err, "failed to generate code")
	}

	if err := s.store.Save(ctx, storeKey(purpose, subject), code, s.ttl); err != nil {
		return err
	}

	if err := s.sender.SendCode(email, code); err != nil {
		return errors.Wrap(err, "failed to send code")
	}

	log.Dbg("Verification code issued:", purpose)

	return nil
}

// Verify checks the code and consumes it on success.
func (s *Service) Verify(ctx context.Context, purpose Purpose, subject, code string) error {
	key := storeKey(purpose, subject)

	stored, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}

	if !ok {
		return ErrInvalidCode
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		return s.recordFailure(ctx, purpose, key)
	}

	deleted, err := s.store.Delete(ctx, key)
	if err != nil {
		return err
	}

	if !deleted {
		return ErrInvalidCode
	}

	return nil
}

func (s *Service) recordFailure(ctx context.Context, purpose Purpose, key string) error {
	failures, err := s.store.RecordFailure(ctx, key)
	if err != nil {
		return err
	}

	if failures >= MaxFailedAttempts {
		if _, err := s.store.Delete(ctx, key); err != nil {
			return err
		}

		log.Msg(fmt.Sprintf("Verification code (%s) revoked after %d failed attempts", purpose, failures))
	}

	return ErrInvalidCode
}
