/*
2021 © Postgres.ai
*/

// Package solicitation registers customer requests and issues tracking protocols.
package solicitation

import (
	"context"
	"fmt"

	"github.com/AlekSi/pointer"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/models"
	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
)

const (
	existingClientSQL = `SELECT 1 FROM clientes WHERE cpf = $1 OR email = $2`

	insertSolicitationSQL = `INSERT INTO solicitacoes
  (tipo, nome_cliente, cpf, cep, email, endereco, apartamento, bloco, nome_empreendimento,
   servico_atual, novo_servico, telefone, melhor_horario, descricao, data_registro, status, protocolo)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), $15, $16)`

	insertClientSQL = `INSERT INTO clientes
  (nome_cliente, cpf, cep, email, endereco, apartamento, bloco, nome_empreendimento, servico, senha)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

// Executor runs statements against the database.
type Executor interface {
	Execute(ctx context.Context, sql string, params ...interface{}) (*sqlexec.Result, error)
	ExecuteTransaction(ctx context.Context, stmts []sqlexec.Statement) ([]*sqlexec.Result, error)
}

// Notifier delivers protocol confirmations.
type Notifier interface {
	NotifyProtocol(email, protocol string) error
}

// Outcome describes the result of a submitted request.
type Outcome struct {
	Protocol      string
	AlreadyExists bool
}

// Service defines a solicitation writer.
type Service struct {
	executor  Executor
	notifier  Notifier
	protocols *ProtocolGenerator
	hashCost  int
}

// NewService creates a new solicitation service. The notifier may be nil.
func NewService(executor Executor, notifier Notifier) *Service {
	return &Service{
		executor:  executor,
		notifier:  notifier,
		protocols: NewProtocolGenerator(),
		hashCost:  bcrypt.DefaultCost,
	}
}

// Submit validates the request, stores it and returns its protocol.
// A new client whose CPF or e-mail is already registered is reported through Outcome.AlreadyExists
// and nothing is written.
// Once admitted, the call is bounded only by the per-attempt timeout: caller cancellation does not abort it.
func (s *Service) Submit(ctx context.Context, req Request) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)

	reqType, err := req.Validate()
	if err != nil {
		return Outcome{}, err
	}

	var passwordHash *string

	if reqType == TypeNewClient && req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
		if err != nil {
			return Outcome{}, errors.Wrap(err, "failed to hash password")
		}

		passwordHash = pointer.ToString(string(hash))
	}

	if reqType == TypeNewClient {
		existing, err := s.executor.Execute(ctx, existingClientSQL, req.CPF, req.Email)
		if err != nil {
			return Outcome{}, errors.Wrap(err, "failed to check existing clients")
		}

		if !existing.Empty() {
			log.Dbg("Client already registered, skipping the solicitation")
			return Outcome{AlreadyExists: true}, nil
		}
	}

	protocol := s.protocols.Next()

	stmts := []sqlexec.Statement{solicitationStatement(reqType, &req, protocol)}

	if reqType == TypeNewClient {
		stmts = append(stmts, clientStatement(&req, passwordHash))
	}

	if _, err := s.executor.ExecuteTransaction(ctx, stmts); err != nil {
		return Outcome{}, errors.Wrap(err, "failed to save solicitation")
	}

	log.Msg(fmt.Sprintf("Solicitation %s registered (%s)", protocol, reqType))

	if req.Email != "" && s.notifier != nil {
		if err := s.notifier.NotifyProtocol(req.Email, protocol); err != nil {
			log.Err("Failed to notify about protocol", protocol, err)
		}
	}

	return Outcome{Protocol: protocol}, nil
}

func solicitationStatement(reqType Type, req *Request, protocol string) sqlexec.Statement {
	return sqlexec.NewStatement(insertSolicitationSQL,
		string(reqType),
		nullable(req.ClientName),
		nullable(req.CPF),
		nullable(req.CEP),
		nullable(req.Email),
		nullable(req.Address),
		nullable(req.Apartment),
		nullable(req.Block),
		nullable(req.DevelopmentName),
		nullable(req.CurrentService),
		nullable(req.NewService),
		nullable(req.Phone),
		nullable(req.PreferredTimeSlot),
		nullable(req.Description),
		models.StatusUnderReview,
		protocol,
	)
}

func clientStatement(req *Request, passwordHash *string) sqlexec.Statement {
	return sqlexec.NewStatement(insertClientSQL,
		nullable(req.ClientName),
		nullable(req.CPF),
		nullable(req.CEP),
		nullable(req.Email),
		nullable(req.Address),
		nullable(req.Apartment),
		nullable(req.Block),
		nullable(req.DevelopmentName),
		nullable(req.NewService),
		passwordHash,
	)
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return pointer.ToString(s)
}
