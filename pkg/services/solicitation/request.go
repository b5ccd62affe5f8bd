/*
2021 © Postgres.ai
*/

package solicitation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Type defines a kind of solicitation.
type Type string

// Solicitation types as stored in the database.
const (
	TypeNewClient     Type = "novo_cliente"
	TypeMaintenance   Type = "manutencao"
	TypeServiceChange Type = "troca_servico"
)

var typeAliases = map[string]Type{
	string(TypeNewClient):     TypeNewClient,
	string(TypeMaintenance):   TypeMaintenance,
	string(TypeServiceChange): TypeServiceChange,
	"new_client":              TypeNewClient,
	"maintenance":             TypeMaintenance,
	"service_change":          TypeServiceChange,
}

// requiredFields lists the fields that must be non-empty per type.
var requiredFields = map[Type][]string{
	TypeNewClient:     {"cpf", "email"},
	TypeMaintenance:   {"cpf", "telefone", "melhor_horario"},
	TypeServiceChange: {"cpf", "novo_servico"},
}

// ErrInvalidRequest matches every rejected request.
var ErrInvalidRequest = errors.New("invalid request")

// RequestError describes why a request was rejected.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string {
	return e.Reason
}

// Is makes RequestError match ErrInvalidRequest.
func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// ParseType resolves a request type by its stored name or English alias.
func ParseType(s string) (Type, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &RequestError{Reason: fmt.Sprintf("Tipo de solicitação inválido: %q", s)}
	}

	return t, nil
}

// Request holds the fields submitted for a solicitation.
type Request struct {
	Type              string `json:"tipo"`
	ClientName        string `json:"nome_cliente"`
	CPF               string `json:"cpf"`
	CEP               string `json:"cep"`
	Email             string `json:"email"`
	Address           string `json:"endereco"`
	Apartment         string `json:"apartamento"`
	Block             string `json:"bloco"`
	DevelopmentName   string `json:"nome_empreendimento"`
	CurrentService    string `json:"servico_atual"`
	NewService        string `json:"novo_servico"`
	Phone             string `json:"telefone"`
	PreferredTimeSlot string `json:"melhor_horario"`
	Description       string `json:"descricao"`
	Password          string `json:"senha"`
}

func (r *Request) field(name string) string {
	switch name {
	case "cpf":
		return r.CPF
	case "email":
		return r.Email
	case "telefone":
		return r.Phone
	case "melhor_horario":
		return r.PreferredTimeSlot
	case "novo_servico":
		return r.NewService
	}

	return ""
}

// Validate resolves the request type and checks its required fields.
func (r *Request) Validate() (Type, error) {
	t, err := ParseType(r.Type)
	if err != nil {
		return "", err
	}

	for _, name := range requiredFields[t] {
		if strings.TrimSpace(r.field(name)) == "" {
			return "", &RequestError{Reason: "Campo obrigatório ausente: " + name}
		}
	}

	return t, nil
}
