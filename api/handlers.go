/*
handlers.go - HTTP handlers for the governance mirror API

PURPOSE:
  Thin translation layer: decode the body, call the service, encode the
  result. No approval or coherence logic lives here.

ERROR MAPPING:
  governance.ErrNotFound          -> 404
  governance.ErrInvalidState      -> 400
  governance.ErrForbidden         -> 403
  governance.ErrNoIdentity        -> 503 (cache cold, no profile yet)
  governance.ErrRefreshInProgress -> 409
  governance.ErrRemoteUnavailable -> 502
  anything else                   -> 500

SEE ALSO:
  - server.go: route wiring
  - dto.go: the JSON shapes
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vantage/governance-mirror/governance"
	"github.com/vantage/governance-mirror/mirror"
)

// Handler holds the API's collaborators.
type Handler struct {
	Service   *governance.Service
	Refresher *mirror.Refresher
	Oracle    *mirror.Oracle

	log zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(service *governance.Service, refresher *mirror.Refresher, oracle *mirror.Oracle, log zerolog.Logger) *Handler {
	return &Handler{
		Service:   service,
		Refresher: refresher,
		Oracle:    oracle,
		log:       log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// IDENTITY ENDPOINTS
// =============================================================================

// Health reports process liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetCurrentUser returns the effective identity.
// GET /api/user
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.GetEffectiveUser(r.Context())
	if err != nil {
		h.serviceError(w, "Failed to resolve user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// Impersonate starts acting as another employee (admin only).
// POST /api/impersonate
func (h *Handler) Impersonate(w http.ResponseWriter, r *http.Request) {
	var body ImpersonateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.EmployeeID == 0 {
		writeError(w, http.StatusBadRequest, "EMPLOYEE_ID required", nil)
		return
	}
	profile, err := h.Service.Impersonate(r.Context(), body.EmployeeID)
	if err != nil {
		h.serviceError(w, "Failed to impersonate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Now acting as " + profile.DisplayName,
		"user":    profile,
	})
}

// StopImpersonate clears the impersonation override.
// POST /api/stop-impersonate
func (h *Handler) StopImpersonate(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Service.StopImpersonate(r.Context())
	if err != nil {
		h.serviceError(w, "Failed to stop impersonating", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Stopped impersonating",
		"user":    profile,
	})
}

// ImpersonateStatus reports whether an override is active.
// GET /api/impersonate/status
func (h *Handler) ImpersonateStatus(w http.ResponseWriter, r *http.Request) {
	if imp := h.Service.Identity().Impersonating(); imp != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"active":       true,
			"employee_id":  imp.EmployeeID,
			"display_name": imp.DisplayName,
			"title":        imp.Title,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": false})
}

// SearchEmployees finds directory entries for impersonation (admin only).
// GET /api/employees/search?q=
func (h *Handler) SearchEmployees(w http.ResponseWriter, r *http.Request) {
	results, err := h.Service.SearchEmployees(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.serviceError(w, "Failed to search employees", err)
		return
	}
	dtos := make([]EmployeeDTO, 0, len(results))
	for _, e := range results {
		dtos = append(dtos, EmployeeDTO{
			EmployeeID: e.EmployeeID,
			Name:       e.Name,
			Title:      e.Title,
			Department: e.Department,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REQUEST ENDPOINTS
// =============================================================================

// ListRequests returns mirrored requests matching the query filters.
// GET /api/requests?theater=&industry_segment=&quarter=&status=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := governance.RequestFilter{
		Theater:         q.Get("theater"),
		IndustrySegment: q.Get("industry_segment"),
		Quarter:         q.Get("quarter"),
		Status:          governance.Status(q.Get("status")),
	}
	requests, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		h.serviceError(w, "Failed to list requests", err)
		return
	}
	dtos := make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		dtos = append(dtos, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRequest returns one request with its approval chain.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	detail, err := h.Service.GetRequest(r.Context(), id)
	if err != nil {
		h.serviceError(w, "Failed to get request", err)
		return
	}
	dto := RequestDetailDTO{RequestDTO: toRequestDTO(detail.Request)}
	dto.ApprovalSteps = make([]ApprovalStepDTO, 0, len(detail.Steps))
	for _, st := range detail.Steps {
		dto.ApprovalSteps = append(dto.ApprovalSteps, toStepDTO(st))
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetRequestSteps returns only a request's approval chain.
// GET /api/requests/{id}/steps
func (h *Handler) GetRequestSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	detail, err := h.Service.GetRequest(r.Context(), id)
	if err != nil {
		h.serviceError(w, "Failed to get approval steps", err)
		return
	}
	dtos := make([]ApprovalStepDTO, 0, len(detail.Steps))
	for _, st := range detail.Steps {
		dtos = append(dtos, toStepDTO(st))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRequest creates a draft, optionally auto-submitting it.
// POST /api/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	result, err := h.Service.CreateRequest(r.Context(), toRequestInput(body))
	if err != nil {
		h.serviceError(w, "Failed to create request", err)
		return
	}
	resp := map[string]any{
		"REQUEST_ID": result.RequestID,
		"message":    "Request created",
	}
	if result.Submitted {
		resp["message"] = "Request created and submitted"
		resp["chain"] = result.Chain
	}
	writeJSON(w, http.StatusCreated, resp)
}

// UpdateRequest overwrites a draft's editable fields.
// PUT /api/requests/{id}
func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body RequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Service.UpdateRequest(r.Context(), id, toRequestInput(body)); err != nil {
		h.serviceError(w, "Failed to update request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request updated"})
}

// DeleteRequest removes a draft.
// DELETE /api/requests/{id}
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteRequest(r.Context(), id); err != nil {
		h.serviceError(w, "Failed to delete request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request deleted"})
}

// SubmitRequest moves a draft into review.
// POST /api/requests/{id}/submit
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body := h.commentBody(r)
	chain, err := h.Service.Submit(r.Context(), id, body.text())
	if err != nil {
		h.serviceError(w, "Failed to submit request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Request submitted for approval",
		"chain":   chain,
	})
}

// WithdrawRequest pulls an in-review request back to draft.
// POST /api/requests/{id}/withdraw
func (h *Handler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body := h.commentBody(r)
	if err := h.Service.Withdraw(r.Context(), id, body.text()); err != nil {
		h.serviceError(w, "Failed to withdraw request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request withdrawn to draft"})
}

// ApproveRequest advances the request one approval step.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body := h.commentBody(r)
	status, err := h.Service.Approve(r.Context(), id, body.text())
	if err != nil {
		h.serviceError(w, "Failed to approve request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Request approved, new status: " + string(status),
	})
}

// RejectRequest marks an in-review request rejected.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body := h.commentBody(r)
	if err := h.Service.Reject(r.Context(), id, body.text()); err != nil {
		h.serviceError(w, "Failed to reject request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request rejected"})
}

// DenyRequest terminally refuses an in-review request.
// POST /api/requests/{id}/deny
func (h *Handler) DenyRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body := h.commentBody(r)
	if err := h.Service.Deny(r.Context(), id, body.text()); err != nil {
		h.serviceError(w, "Failed to deny request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request denied"})
}

// SendBackRequest returns an in-review request to draft with feedback.
// POST /api/requests/{id}/send-back
func (h *Handler) SendBackRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	body := h.commentBody(r)
	if err := h.Service.SendBack(r.Context(), id, body.text()); err != nil {
		h.serviceError(w, "Failed to send back request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request sent back for revision"})
}

// ReviseRequest rewrites a rejected request, optionally resubmitting.
// POST /api/requests/{id}/revise
func (h *Handler) ReviseRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body ReviseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	err := h.Service.Revise(r.Context(), id, governance.ReviseInput{
		Justification:   body.Justification,
		ExpectedOutcome: body.ExpectedOutcome,
		RiskAssessment:  body.RiskAssessment,
		Submit:          body.Submit,
		Comment:         body.Comment,
	})
	if err != nil {
		h.serviceError(w, "Failed to revise request", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request revised successfully"})
}

// GetApprovalChain previews the chain for an employee and theater.
// GET /api/approval-chain?employee_id=&theater=
func (h *Handler) GetApprovalChain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	employeeID, err := strconv.ParseInt(q.Get("employee_id"), 10, 64)
	theater := q.Get("theater")
	if err != nil || employeeID == 0 || theater == "" {
		writeError(w, http.StatusBadRequest, "employee_id and theater are required", nil)
		return
	}
	chain, err := h.Service.ResolveApprovalChain(r.Context(), employeeID, theater)
	if err != nil {
		h.serviceError(w, "Failed to resolve approval chain", err)
		return
	}
	if chain == nil {
		chain = []governance.ChainLink{}
	}
	writeJSON(w, http.StatusOK, chain)
}

// =============================================================================
// CACHE ENDPOINTS
// =============================================================================

// TriggerRefresh starts a full cache refresh in the background.
// POST /api/cache/refresh
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Refresher.Trigger(r.Context()); err != nil {
		h.serviceError(w, "Failed to start refresh", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Cache refresh started"})
}

// GetRefreshProgress reports the refresh state for polling.
// GET /api/cache/progress
func (h *Handler) GetRefreshProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Refresher.Progress())
}

// GetCacheStatus reports the staleness verdict per data source.
// GET /api/cache/status
func (h *Handler) GetCacheStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Oracle.Check(r.Context()))
}

// =============================================================================
// DIRECTORY ENDPOINTS
// =============================================================================

// SearchAccounts finds mirrored accounts by name.
// GET /api/accounts/search?q=
func (h *Handler) SearchAccounts(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.SearchAccounts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.serviceError(w, "Failed to search accounts", err)
		return
	}
	dto := AccountSearchDTO{
		Accounts:     make([]AccountDTO, 0, len(result.Accounts)),
		TotalMatches: result.TotalMatches,
	}
	for _, a := range result.Accounts {
		dto.Accounts = append(dto.Accounts, AccountDTO{
			AccountID:       a.ID,
			AccountName:     a.Name,
			Theater:         a.Theater,
			IndustrySegment: a.IndustrySegment,
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetTheatersIndustries lists classification dimensions.
// GET /api/lookup/theaters-industries
func (h *Handler) GetTheatersIndustries(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.Service.TheaterIndustryLookup(r.Context())
	if err != nil {
		h.serviceError(w, "Failed to load lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"theaters":              lookup.Theaters,
		"industries":            lookup.Industries,
		"industries_by_theater": lookup.IndustriesByTheater,
	})
}

// GetSummary aggregates the mirror for the dashboard.
// GET /api/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.Summary(r.Context())
	if err != nil {
		h.serviceError(w, "Failed to load summary", err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		Total:                sum.Total,
		Draft:                sum.Draft,
		InReview:             sum.InReview,
		Approved:             sum.Approved,
		Rejected:             sum.Rejected,
		PendingMyApproval:    sum.PendingMyApproval,
		TotalRequestedAmount: sum.TotalRequested.String(),
		TotalApprovedAmount:  sum.TotalApproved.String(),
	})
}

// =============================================================================
// OPPORTUNITY AND BUDGET ENDPOINTS
// =============================================================================

// ListOpportunities lists warehouse opportunities for an account.
// GET /api/accounts/{accountID}/opportunities
func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "account id is required", nil)
		return
	}
	opps, err := h.Service.Opportunities(r.Context(), accountID)
	if err != nil {
		h.serviceError(w, "Failed to load opportunities", err)
		return
	}
	dtos := make([]OpportunityDTO, 0, len(opps))
	for _, o := range opps {
		dto := OpportunityDTO{
			OpportunityID: o.ID,
			Name:          o.Name,
			AccountID:     o.AccountID,
			AccountName:   o.AccountName,
			Stage:         o.Stage,
			CloseDate:     fmtTSPtr(o.CloseDate),
			OwnerName:     o.OwnerName,
		}
		if o.Amount != nil {
			dto.Amount = o.Amount.String()
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListLinkedOpportunities lists opportunity ids linked to a request.
// GET /api/requests/{id}/opportunities
func (h *Handler) ListLinkedOpportunities(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	ids, err := h.Service.LinkedOpportunities(r.Context(), id)
	if err != nil {
		h.serviceError(w, "Failed to load linked opportunities", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// LinkOpportunity attaches an opportunity to a request.
// POST /api/requests/{id}/opportunities
func (h *Handler) LinkOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	var body LinkOpportunityBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OpportunityID == "" {
		writeError(w, http.StatusBadRequest, "OPPORTUNITY_ID required", err)
		return
	}
	if err := h.Service.LinkOpportunity(r.Context(), id, body.OpportunityID); err != nil {
		h.serviceError(w, "Failed to link opportunity", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Opportunity linked"})
}

// UnlinkOpportunity detaches an opportunity from a request.
// DELETE /api/requests/{id}/opportunities/{oppID}
func (h *Handler) UnlinkOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	oppID := chi.URLParam(r, "oppID")
	if err := h.Service.UnlinkOpportunity(r.Context(), id, oppID); err != nil {
		h.serviceError(w, "Failed to unlink opportunity", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Opportunity unlinked"})
}

// ListBudgets lists annual budget rows.
// GET /api/budgets?fiscal_year=
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.Service.Budgets(r.Context(), r.URL.Query().Get("fiscal_year"))
	if err != nil {
		h.serviceError(w, "Failed to load budgets", err)
		return
	}
	dtos := make([]BudgetDTO, 0, len(budgets))
	for _, b := range budgets {
		dtos = append(dtos, BudgetDTO{
			BudgetID:        b.ID,
			FiscalYear:      b.FiscalYear,
			Theater:         b.Theater,
			IndustrySegment: b.IndustrySegment,
			Portfolio:       b.Portfolio,
			BudgetAmount:    b.BudgetAmount.String(),
			AllocatedAmount: b.AllocatedAmount.String(),
			Q1Budget:        b.QuarterBudgets[0].String(),
			Q2Budget:        b.QuarterBudgets[1].String(),
			Q3Budget:        b.QuarterBudgets[2].String(),
			Q4Budget:        b.QuarterBudgets[3].String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request id", err)
		return 0, false
	}
	return id, true
}

// commentBody tolerates an empty body; every approval action's comment
// is optional.
func (h *Handler) commentBody(r *http.Request) CommentBody {
	var body CommentBody
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func (h *Handler) serviceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, governance.ErrNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, governance.ErrInvalidState):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, governance.ErrForbidden):
		writeError(w, http.StatusForbidden, "Admin access required", nil)
	case errors.Is(err, governance.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, "Cache refresh already in progress", nil)
	case errors.Is(err, governance.ErrNoIdentity):
		writeError(w, http.StatusServiceUnavailable, "User identity not loaded yet", err)
	case errors.Is(err, governance.ErrRemoteUnavailable):
		writeError(w, http.StatusBadGateway, message, err)
	default:
		h.log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
