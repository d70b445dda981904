// Package httpapi exposes the approval engine over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gitlab.com/yelinaung/approval-engine/internal/approval"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
)

// Handler serves the engine's operations.
type Handler struct {
	engine *approval.Engine
}

// NewHandler creates a Handler.
func NewHandler(engine *approval.Engine) *Handler {
	return &Handler{engine: engine}
}

// Routes returns the handler's route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/submissions", h.Submit)
	mux.HandleFunc("/requests", h.GetRequest)
	mux.HandleFunc("/requests/pending", h.ListPending)
	mux.HandleFunc("/requests/history", h.History)
	mux.HandleFunc("/requests/decide", h.Decide)
	mux.HandleFunc("/requests/bulk-decide", h.BulkDecide)
	mux.HandleFunc("/requests/escalate", h.Escalate)
	mux.HandleFunc("/rules", h.Rules)
	mux.HandleFunc("/workflow-config", h.WorkflowConfig)
	mux.HandleFunc("/delegations", h.Delegations)
	mux.HandleFunc("/delegations/revoke", h.RevokeDelegation)
	return mux
}

// Health handles liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Submit handles new receipt submissions.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ReceiptID == 0 || payload.UserID == 0 || payload.CompanyID == 0 {
		writeError(w, http.StatusBadRequest, "receipt_id, user_id and company_id are required")
		return
	}

	req, err := h.engine.Submit(r.Context(), approval.Submission{
		ReceiptID:     payload.ReceiptID,
		UserID:        payload.UserID,
		CompanyID:     payload.CompanyID,
		Amount:        payload.Amount,
		Category:      payload.Category,
		Vendor:        payload.Vendor,
		SubmitterRole: payload.SubmitterRole,
		Reason:        payload.Reason,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if req == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"approval_required": false})
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(req))
}

// GetRequest handles single-request lookups by id.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	req, err := h.engine.GetRequest(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// ListPending returns an approver's live inbox.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	companyID, err := int64Param(r, "company_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	approverID, err := int64Param(r, "approver_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	requests, err := h.engine.ListPendingForApprover(r.Context(), companyID, approverID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": toRequestResponses(requests)})
}

// History returns a request's audit trail.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	actions, err := h.engine.History(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": toActionResponses(actions)})
}

// Decide applies one approver action to one request.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload decidePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.RequestID == "" || payload.ActorID == 0 {
		writeError(w, http.StatusBadRequest, "request_id and actor_id are required")
		return
	}

	req, err := h.engine.Decide(r.Context(), payload.RequestID, payload.ActorID, payload.Action, payload.Comments)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// BulkDecide applies one action to a batch of requests.
func (h *Handler) BulkDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload bulkDecidePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.RequestIDs) == 0 || payload.ActorID == 0 {
		writeError(w, http.StatusBadRequest, "request_ids and actor_id are required")
		return
	}

	result, err := h.engine.BulkDecide(r.Context(), payload.RequestIDs, payload.ActorID, payload.Action, payload.Comments)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Escalate bumps a request one tier up its escalation chain.
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload decidePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.RequestID == "" || payload.ActorID == 0 {
		writeError(w, http.StatusBadRequest, "request_id and actor_id are required")
		return
	}

	req, err := h.engine.Escalate(r.Context(), payload.RequestID, payload.ActorID, payload.Comments)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

// Rules lists, creates or updates approval rules.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companyID, err := int64Param(r, "company_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rules, err := h.engine.Rules().ListActive(r.Context(), companyID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		out := make([]ruleResponse, len(rules))
		for i := range rules {
			out[i] = toRuleResponse(&rules[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": out})

	case http.MethodPost:
		var payload rulePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rule := payload.toModel()
		if err := h.engine.Rules().Create(r.Context(), rule); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRuleResponse(rule))

	case http.MethodPut:
		var payload rulePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if payload.ID == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		rule := payload.toModel()
		if err := h.engine.Rules().Update(r.Context(), rule); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRuleResponse(rule))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// WorkflowConfig reads or updates a tenant's workflow defaults.
func (h *Handler) WorkflowConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companyID, err := int64Param(r, "company_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg, err := h.engine.Config().Get(r.Context(), companyID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(cfg))

	case http.MethodPut:
		var payload struct {
			CompanyID int64 `json:"company_id"`
			approval.ConfigUpdate
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if payload.CompanyID == 0 {
			writeError(w, http.StatusBadRequest, "company_id is required")
			return
		}
		cfg, err := h.engine.Config().Update(r.Context(), payload.CompanyID, payload.ConfigUpdate)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConfigResponse(cfg))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Delegations lists a delegate's active delegations or creates a new one.
func (h *Handler) Delegations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companyID, err := int64Param(r, "company_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		delegateTo, err := int64Param(r, "delegate_to")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		delegations, err := h.engine.ListDelegationsForDelegate(r.Context(), companyID, delegateTo)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"delegations": toDelegationResponses(delegations)})

	case http.MethodPost:
		var payload delegationPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		delegation := payload.toModel()
		if err := h.engine.CreateDelegation(r.Context(), delegation); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDelegationResponse(delegation))

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// RevokeDelegation ends a delegation early.
func (h *Handler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload revokeDelegationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.DelegationID == "" || payload.DelegatorID == 0 {
		writeError(w, http.StatusBadRequest, "delegation_id and delegator_id are required")
		return
	}

	if err := h.engine.RevokeDelegation(r.Context(), payload.DelegationID, payload.DelegatorID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.New(name + " is required")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps the engine's sentinel errors to HTTP statuses.
// Unknown errors become 500 with a generic body so internals never leak.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrNotPending),
		errors.Is(err, approval.ErrMaxEscalationReached),
		errors.Is(err, approval.ErrNoEscalationChain):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, approval.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, approval.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
