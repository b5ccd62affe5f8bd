/*
2021 © Postgres.ai
*/

// Package clients provides client lookups, authentication and credential recovery.
package clients

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/models"
	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
	"gitlab.com/postgres-ai/chegar/pkg/services/verification"
	"gitlab.com/postgres-ai/chegar/pkg/util/text"
)

// MinPasswordLength defines the shortest accepted password.
const MinPasswordLength = 6

const (
	signupByCPFSQL = `SELECT * FROM solicitacoes WHERE cpf = $1 AND tipo = $2 ORDER BY data_registro DESC LIMIT 1`

	clientByCPFSQL = `SELECT * FROM clientes WHERE cpf = $1`

	solicitationByProtocolSQL = `SELECT * FROM solicitacoes WHERE protocolo = $1`

	updatePasswordSQL = `UPDATE clientes SET senha = $1 WHERE cpf = $2`

	newClientType = "novo_cliente"
)

var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials means the CPF or the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidInput means the request misses a field or has a malformed one.
	ErrInvalidInput = errors.New("invalid input")
)

// InputError describes a rejected field.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return e.Reason
}

// Is makes InputError match ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Executor runs statements against the database.
type Executor interface {
	Execute(ctx context.Context, sql string, params ...interface{}) (*sqlexec.Result, error)
}

// Verifier issues and checks verification codes.
type Verifier interface {
	Issue(ctx context.Context, purpose verification.Purpose, subject, email string) error
	Verify(ctx context.Context, purpose verification.Purpose, subject, code string) error
}

// Service defines a client service.
type Service struct {
	executor Executor
	verifier Verifier
	hashCost int
}

// NewService creates a new client service.
func NewService(executor Executor, verifier Verifier) *Service {
	return &Service{
		executor: executor,
		verifier: verifier,
		hashCost: bcrypt.DefaultCost,
	}
}

// FindSignup returns the latest signup solicitation of the CPF.
func (s *Service) FindSignup(ctx context.Context, cpf string) (*models.Solicitation, error) {
	solicitation := &models.Solicitation{}

	if err := s.findOne(ctx, solicitation, signupByCPFSQL, cpf, newClientType); err != nil {
		return nil, err
	}

	return solicitation, nil
}

// FindSolicitation returns the solicitation with the protocol.
func (s *Service) FindSolicitation(ctx context.Context, protocol string) (*models.Solicitation, error) {
	solicitation := &models.Solicitation{}

	if err := s.findOne(ctx, solicitation, solicitationByProtocolSQL, protocol); err != nil {
		return nil, err
	}

	return solicitation, nil
}

// FindClient returns the client registered with the CPF. The credential is never returned.
func (s *Service) FindClient(ctx context.Context, cpf string) (*models.Client, error) {
	client, err := s.client(ctx, cpf)
	if err != nil {
		return nil, err
	}

	public := client.Public()

	return &public, nil
}

// Login checks the password of the client.
func (s *Service) Login(ctx context.Context, cpf, password string) (*models.Client, error) {
	client, err := s.client(ctx, cpf)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}

		return nil, err
	}

	if client.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	public := client.Public()

	return &public, nil
}

// RecoverEmail returns the masked e-mail of the client.
func (s *Service) RecoverEmail(ctx context.Context, cpf string) (string, error) {
	client, err := s.clientWithEmail(ctx, cpf)
	if err != nil {
		return "", err
	}

	return text.MaskEmail(client.Email), nil
}

// SendRecoveryCode sends a password recovery code to the e-mail of the client.
func (s *Service) SendRecoveryCode(ctx context.Context, cpf string) error {
	client, err := s.clientWithEmail(ctx, cpf)
	if err != nil {
		return err
	}

	return s.verifier.Issue(ctx, verification.PurposeRecovery, client.CPF, client.Email)
}

// ChangePassword replaces the password after checking the recovery code.
func (s *Service) ChangePassword(ctx context.Context, cpf, code, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return &InputError{Reason: fmt.Sprintf("A senha deve ter pelo menos %d caracteres", MinPasswordLength)}
	}

	client, err := s.client(ctx, cpf)
	if err != nil {
		return err
	}

	if err := s.verifier.Verify(ctx, verification.PurposeRecovery, client.CPF, code); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.hashCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	if _, err := s.executor.Execute(ctx, updatePasswordSQL, string(hash), client.CPF); err != nil {
		return errors.Wrap(err, "failed to update password")
	}

	log.Msg("Password changed for a client")

	return nil
}

// SendEmailCode sends a code confirming the ownership of the e-mail.
func (s *Service) SendEmailCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	if _, err := mail.ParseAddress(email); err != nil {
		return &InputError{Reason: "E-mail inválido"}
	}

	return s.verifier.Issue(ctx, verification.PurposeEmail, email, email)
}

// VerifyEmailCode checks and consumes the e-mail code.
func (s *Service) VerifyEmailCode(ctx context.Context, email, code string) error {
	return s.verifier.Verify(ctx, verification.PurposeEmail, email, code)
}

func (s *Service) client(ctx context.Context, cpf string) (*models.Client, error) {
	cpf = strings.TrimSpace(cpf)
	if cpf == "" {
		return nil, &InputError{Reason: "CPF é obrigatório"}
	}

	client := &models.Client{}

	if err := s.findOne(ctx, client, clientByCPFSQL, cpf); err != nil {
		return nil, err
	}

	return client, nil
}

func (s *Service) clientWithEmail(ctx context.Context, cpf string) (*models.Client, error) {
	client, err := s.client(ctx, cpf)
	if err != nil {
		return nil, err
	}

	if client.Email == "" {
		return nil, errors.Wrap(ErrNotFound, "client has no e-mail")
	}

	return client, nil
}

func (s *Service) findOne(ctx context.Context, dest interface{}, sql string, params ...interface{}) error {
	res, err := s.executor.Execute(ctx, sql, params...)
	if err != nil {
		return err
	}

	if res.Empty() {
		return ErrNotFound
	}

	return res.First().Scan(dest)
}
