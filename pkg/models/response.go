/*
2021 © Postgres.ai
*/

package models

// ReasonAlreadyExists marks a signup rejected because the client is already registered.
const ReasonAlreadyExists = "ja_existe"

// Response defines the JSON envelope shared by all API endpoints.
type Response struct {
	Success      bool          `json:"success"`
	Protocol     string        `json:"protocolo,omitempty"`
	Reason       string        `json:"motivo,omitempty"`
	Error        string        `json:"error,omitempty"`
	Message      string        `json:"message,omitempty"`
	Email        string        `json:"email,omitempty"`
	Client       *Client       `json:"cliente,omitempty"`
	Solicitation *Solicitation `json:"solicitacao,omitempty"`
	RequestID    string        `json:"requestId,omitempty"`
}

// OK creates a successful envelope.
func OK() Response {
	return Response{Success: true}
}

// Fail creates a failed envelope with the message.
func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}
