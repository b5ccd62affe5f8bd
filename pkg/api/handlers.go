/*
2019 © Postgres.ai
*/

package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"
	"gitlab.com/postgres-ai/database-lab/v2/pkg/srv/api"

	"gitlab.com/postgres-ai/chegar/pkg/models"
	"gitlab.com/postgres-ai/chegar/pkg/services/clients"
	"gitlab.com/postgres-ai/chegar/pkg/services/health"
	"gitlab.com/postgres-ai/chegar/pkg/services/solicitation"
	"gitlab.com/postgres-ai/chegar/pkg/services/sqlexec"
	"gitlab.com/postgres-ai/chegar/pkg/services/verification"
)

// User-facing messages.
const (
	msgInternalError        = "Erro interno do servidor"
	msgInvalidBody          = "Corpo da requisição inválido"
	msgClientNotFound       = "Cliente não encontrado"
	msgSolicitationNotFound = "Solicitação não encontrada"
	msgInvalidCredentials   = "CPF ou senha inválidos"
	msgInvalidCode          = "Código inválido ou expirado"
	msgCodeSent             = "Código enviado"
	msgPasswordChanged      = "Senha alterada com sucesso"
	msgEmailVerified        = "E-mail verificado com sucesso"
	msgSaveFailed           = "Não foi possível registrar a solicitação"
)

// Health statuses.
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

type signupResponse struct {
	Success bool                 `json:"success"`
	Client  *models.Solicitation `json:"cliente"`
}

// serviceChangeRequest is the body posted by the service change page.
type serviceChangeRequest struct {
	ClientName     string `json:"nome_cliente"`
	CPFOrContract  string `json:"cpf_ou_contrato"`
	Email          string `json:"email"`
	Phone          string `json:"telefone"`
	CurrentService string `json:"servico_atual"`
	NewService     string `json:"novo_servico"`
	Description    string `json:"descricao"`
}

type loginRequest struct {
	CPF      string `json:"cpf"`
	Password string `json:"senha"`
}

type cpfRequest struct {
	CPF string `json:"cpf"`
}

type emailCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"codigo"`
}

type changePasswordRequest struct {
	CPF         string `json:"cpf"`
	Code        string `json:"codigo"`
	NewPassword string `json:"novaSenha"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Database  health.Status    `json:"database"`
	Metrics   sqlexec.Snapshot `json:"metrics"`
	Uptime    string           `json:"uptime"`
	Timestamp time.Time        `json:"timestamp"`
}

func (s *Server) submitSolicitation(w http.ResponseWriter, r *http.Request) {
	var req solicitation.Request
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	s.submit(w, r, req)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req solicitation.Request
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	req.Type = string(solicitation.TypeNewClient)

	s.submit(w, r, req)
}

func (s *Server) changeService(w http.ResponseWriter, r *http.Request) {
	var body serviceChangeRequest
	if err := api.ReadJSON(r, &body); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	s.submit(w, r, solicitation.Request{
		Type:           string(solicitation.TypeServiceChange),
		ClientName:     body.ClientName,
		CPF:            body.CPFOrContract,
		Email:          body.Email,
		Phone:          body.Phone,
		CurrentService: body.CurrentService,
		NewService:     body.NewService,
		Description:    body.Description,
	})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, req solicitation.Request) {
	outcome, err := s.solicitations.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, solicitation.ErrInvalidRequest) {
			writeJSON(w, r, http.StatusOK, models.Fail(err.Error()))
			return
		}

		log.Err("Failed to submit solicitation:", err)
		writeJSON(w, r, http.StatusInternalServerError, models.Fail(msgSaveFailed))

		return
	}

	if outcome.AlreadyExists {
		writeJSON(w, r, http.StatusOK, models.Response{Success: false, Reason: models.ReasonAlreadyExists})
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Protocol: outcome.Protocol})
}

func (s *Server) getSignup(w http.ResponseWriter, r *http.Request) {
	signup, err := s.clients.FindSignup(r.Context(), r.PathValue("cpf"))
	if err != nil {
		s.sendError(w, r, err, msgClientNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, signupResponse{Success: true, Client: signup})
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.FindClient(r.Context(), r.PathValue("cpf"))
	if err != nil {
		s.sendError(w, r, err, msgClientNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Client: client})
}

func (s *Server) getSolicitation(w http.ResponseWriter, r *http.Request) {
	found, err := s.clients.FindSolicitation(r.Context(), r.PathValue("protocolo"))
	if err != nil {
		s.sendError(w, r, err, msgSolicitationNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Solicitation: found})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	client, err := s.clients.Login(r.Context(), req.CPF, req.Password)
	if err != nil {
		s.sendError(w, r, err, msgClientNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Client: client})
}

func (s *Server) sendEmailCode(w http.ResponseWriter, r *http.Request) {
	var req emailCodeRequest
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	if err := s.clients.SendEmailCode(r.Context(), req.Email); err != nil {
		s.sendError(w, r, err, "")
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Message: msgCodeSent})
}

func (s *Server) validateEmailCode(w http.ResponseWriter, r *http.Request) {
	var req emailCodeRequest
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	if err := s.clients.VerifyEmailCode(r.Context(), req.Email, req.Code); err != nil {
		s.sendError(w, r, err, "")
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Message: msgEmailVerified})
}

func (s *Server) recoverEmail(w http.ResponseWriter, r *http.Request) {
	var req cpfRequest
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	email, err := s.clients.RecoverEmail(r.Context(), req.CPF)
	if err != nil {
		s.sendError(w, r, err, msgClientNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Email: email})
}

func (s *Server) sendRecoveryCode(w http.ResponseWriter, r *http.Request) {
	var req cpfRequest
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	if err := s.clients.SendRecoveryCode(r.Context(), req.CPF); err != nil {
		s.sendError(w, r, err, msgClientNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Message: msgCodeSent})
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := api.ReadJSON(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidBody))
		return
	}

	if err := s.clients.ChangePassword(r.Context(), req.CPF, req.Code, req.NewPassword); err != nil {
		s.sendError(w, r, err, msgClientNotFound)
		return
	}

	writeJSON(w, r, http.StatusOK, models.Response{Success: true, Message: msgPasswordChanged})
}

// healthCheck handles health-check requests.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())

	resp := healthResponse{
		Status:    statusHealthy,
		Database:  status,
		Metrics:   s.metrics.Metrics(),
		Uptime:    s.health.Uptime(),
		Timestamp: time.Now(),
	}

	code := http.StatusOK

	if !status.Healthy {
		resp.Status = statusUnhealthy
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, r, code, resp)
}

func (s *Server) sqlMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := s.metrics.Metrics()

	if strings.EqualFold(r.URL.Query().Get("format"), "table") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		renderMetrics(w, snapshot)

		return
	}

	writeJSON(w, r, http.StatusOK, snapshot)
}

// sendError maps service errors to statuses. Unknown errors are logged and hidden.
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, clients.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, models.Fail(notFoundMsg))

	case errors.Is(err, clients.ErrInvalidCredentials):
		writeJSON(w, r, http.StatusUnauthorized, models.Fail(msgInvalidCredentials))

	case errors.Is(err, verification.ErrInvalidCode):
		writeJSON(w, r, http.StatusBadRequest, models.Fail(msgInvalidCode))

	case errors.Is(err, clients.ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, models.Fail(err.Error()))

	default:
		log.Err("Request failed:", r.Method, r.URL.Path, err)
		writeJSON(w, r, http.StatusInternalServerError, models.Fail(msgInternalError))
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if resp, ok := v.(models.Response); ok && !resp.Success {
		resp.RequestID = RequestIDFromContext(r.Context())
		v = resp
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err)
	}
}
