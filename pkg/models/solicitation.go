/*
2021 © Postgres.ai
*/

package models

import (
	"time"
)

// StatusUnderReview defines the status of a newly registered solicitation.
const StatusUnderReview = "Em análise"

// Solicitation describes a customer request tracked by protocol.
type Solicitation struct {
	ID                int64      `json:"id,omitempty"`
	Type              string     `json:"tipo"`
	ClientName        string     `json:"nome_cliente,omitempty"`
	CPF               string     `json:"cpf,omitempty"`
	CEP               string     `json:"cep,omitempty"`
	Email             string     `json:"email,omitempty"`
	Address           string     `json:"endereco,omitempty"`
	Apartment         string     `json:"apartamento,omitempty"`
	Block             string     `json:"bloco,omitempty"`
	DevelopmentName   string     `json:"nome_empreendimento,omitempty"`
	CurrentService    string     `json:"servico_atual,omitempty"`
	NewService        string     `json:"novo_servico,omitempty"`
	Phone             string     `json:"telefone,omitempty"`
	PreferredTimeSlot string     `json:"melhor_horario,omitempty"`
	Description       string     `json:"descricao,omitempty"`
	RegisteredAt      *time.Time `json:"data_registro,omitempty"`
	Status            string     `json:"status,omitempty"`
	Protocol          string     `json:"protocolo"`
}

// Client describes a registered client.
type Client struct {
	ID              int64  `json:"id,omitempty"`
	Name            string `json:"nome_cliente,omitempty"`
	CPF             string `json:"cpf"`
	CEP             string `json:"cep,omitempty"`
	Email           string `json:"email,omitempty"`
	Address         string `json:"endereco,omitempty"`
	Apartment       string `json:"apartamento,omitempty"`
	Block           string `json:"bloco,omitempty"`
	DevelopmentName string `json:"nome_empreendimento,omitempty"`
	Service         string `json:"servico,omitempty"`
	PasswordHash    string `json:"senha,omitempty"`
}

// Public returns a copy of the client without the credential.
func (c Client) Public() Client {
	c.PasswordHash = ""
	return c
}
