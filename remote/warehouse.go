/*
warehouse.go - Typed statements against the warehouse schema

PURPOSE:
  Warehouse is the one place the warehouse table layout is spelled out.
  Each method issues a fixed statement through the Querier and decodes the
  rows into governance values; every failure is wrapped in a
  governance.RemoteError naming the statement family.

SCHEMA MAP:
  governance.investment_requests    request rows (system of record)
  governance.approval_steps         dynamic chain rows per request
  governance.final_approvers        per-theater chain terminator config
  governance.request_opportunities  request-to-opportunity links
  governance.annual_budgets         budget rows
  governance.vw_source_timestamps   per-source last-modified view
  governance.vw_current_user        authenticated session profile view
  hr.employee_directory             reporting hierarchy
  sfdc.accounts                     account directory
  sfdc.opportunities                sales opportunities
*/
package remote

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/vantage/governance-mirror/governance"
)

// Warehouse issues typed statements against the remote schema.
type Warehouse struct {
	q   Querier
	log zerolog.Logger
}

// NewWarehouse wraps a Querier.
func NewWarehouse(q Querier, log zerolog.Logger) *Warehouse {
	return &Warehouse{q: q, log: log.With().Str("component", "warehouse").Logger()}
}

func remoteErr(op string, err error) error {
	return &governance.RemoteError{Op: op, Err: err}
}

// =============================================================================
// STALENESS SOURCES
// =============================================================================

// SourceTimestamps returns the warehouse-side last-modified timestamp per
// data source, as ISO-8601 strings compared lexicographically against the
// cached values.
func (w *Warehouse) SourceTimestamps(ctx context.Context) (map[string]string, error) {
	rows, err := w.q.Query(ctx,
		"SELECT data_source, last_modified FROM governance.vw_source_timestamps")
	if err != nil {
		return nil, remoteErr("source timestamps", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.str("data_source")] = r.str("last_modified")
	}
	return out, nil
}

// =============================================================================
// FULL-TABLE PULLS
// =============================================================================

// FetchCurrentUser resolves the authenticated session's profile.
func (w *Warehouse) FetchCurrentUser(ctx context.Context) (*governance.UserProfile, error) {
	rows, err := w.q.Query(ctx, `
		SELECT username, employee_id, display_name, title, role, theater,
		       industry_segment, manager_id, manager_name, approval_level, is_final_approver
		FROM governance.vw_current_user`)
	if err != nil {
		return nil, remoteErr("current user", err)
	}
	if len(rows) == 0 {
		return nil, remoteErr("current user", fmt.Errorf("no session profile row"))
	}
	r := rows[0]
	return &governance.UserProfile{
		Username:        r.str("username"),
		EmployeeID:      r.int64("employee_id"),
		DisplayName:     r.str("display_name"),
		Title:           r.str("title"),
		Role:            r.str("role"),
		Theater:         r.str("theater"),
		IndustrySegment: r.str("industry_segment"),
		ManagerID:       r.int64Ptr("manager_id"),
		ManagerName:     r.str("manager_name"),
		ApprovalLevel:   int(r.int64("approval_level")),
		IsFinalApprover: r.boolean("is_final_approver"),
	}, nil
}

// FetchFinalApprovers pulls the full per-theater final approver table.
func (w *Warehouse) FetchFinalApprovers(ctx context.Context) ([]governance.FinalApprover, error) {
	rows, err := w.q.Query(ctx, `
		SELECT theater, approver_employee_id, approver_name, approver_title
		FROM governance.final_approvers`)
	if err != nil {
		return nil, remoteErr("final approvers", err)
	}
	out := make([]governance.FinalApprover, 0, len(rows))
	for _, r := range rows {
		out = append(out, governance.FinalApprover{
			Theater:    r.str("theater"),
			EmployeeID: r.int64("approver_employee_id"),
			Name:       r.str("approver_name"),
			Title:      r.str("approver_title"),
		})
	}
	return out, nil
}

const requestSelect = `
	SELECT request_id, request_title, account_id, account_name, investment_type,
	       requested_amount, investment_quarter, business_justification,
	       expected_outcome, risk_assessment,
	       created_by, created_by_name, created_by_employee_id, created_at,
	       theater, industry_segment, status, current_approval_level,
	       next_approver_id, next_approver_name, next_approver_title,
	       dm_approved_by, dm_approved_by_title, dm_approved_at, dm_comments,
	       rd_approved_by, rd_approved_by_title, rd_approved_at, rd_comments,
	       avp_approved_by, avp_approved_by_title, avp_approved_at, avp_comments,
	       gvp_approved_by, gvp_approved_by_title, gvp_approved_at, gvp_comments,
	       updated_at, withdrawn_by, withdrawn_by_name, withdrawn_at, withdrawn_comment,
	       submitted_comment, submitted_by_name, submitted_at,
	       draft_comment, draft_by_name, draft_at,
	       on_behalf_of_employee_id, on_behalf_of_name, opportunity_link, expected_roi
	FROM governance.investment_requests`

// FetchRequests pulls every request row.
func (w *Warehouse) FetchRequests(ctx context.Context) ([]governance.Request, error) {
	rows, err := w.q.Query(ctx, requestSelect)
	if err != nil {
		return nil, remoteErr("requests", err)
	}
	out := make([]governance.Request, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeRequest(r))
	}
	return out, nil
}

func decodeRequest(r Row) governance.Request {
	return governance.Request{
		ID:              r.int64("request_id"),
		Title:           r.str("request_title"),
		AccountID:       r.str("account_id"),
		AccountName:     r.str("account_name"),
		InvestmentType:  r.str("investment_type"),
		Amount:          r.amount("requested_amount"),
		Quarter:         r.str("investment_quarter"),
		Justification:   r.str("business_justification"),
		ExpectedOutcome: r.str("expected_outcome"),
		RiskAssessment:  r.str("risk_assessment"),

		CreatedBy:           r.str("created_by"),
		CreatedByName:       r.str("created_by_name"),
		CreatedByEmployeeID: r.int64("created_by_employee_id"),
		CreatedAt:           r.at("created_at"),

		Theater:         r.str("theater"),
		IndustrySegment: r.str("industry_segment"),

		Status:       governance.Status(r.str("status")),
		CurrentLevel: int(r.int64("current_approval_level")),

		NextApproverID:    r.int64Ptr("next_approver_id"),
		NextApproverName:  r.str("next_approver_name"),
		NextApproverTitle: r.str("next_approver_title"),

		DM:  decodeFact(r, "dm"),
		RD:  decodeFact(r, "rd"),
		AVP: decodeFact(r, "avp"),
		GVP: decodeFact(r, "gvp"),

		UpdatedAt: r.at("updated_at"),

		WithdrawnBy:      r.str("withdrawn_by"),
		WithdrawnByName:  r.str("withdrawn_by_name"),
		WithdrawnAt:      r.timePtr("withdrawn_at"),
		WithdrawnComment: r.str("withdrawn_comment"),

		SubmittedComment: r.str("submitted_comment"),
		SubmittedByName:  r.str("submitted_by_name"),
		SubmittedAt:      r.timePtr("submitted_at"),

		DraftComment: r.str("draft_comment"),
		DraftByName:  r.str("draft_by_name"),
		DraftAt:      r.timePtr("draft_at"),

		OnBehalfOfEmployeeID: r.int64Ptr("on_behalf_of_employee_id"),
		OnBehalfOfName:       r.str("on_behalf_of_name"),
		OpportunityLink:      r.str("opportunity_link"),
		ExpectedROI:          r.str("expected_roi"),
	}
}

func decodeFact(r Row, prefix string) governance.ApprovalFact {
	return governance.ApprovalFact{
		By:       r.str(prefix + "_approved_by"),
		ByTitle:  r.str(prefix + "_approved_by_title"),
		At:       r.timePtr(prefix + "_approved_at"),
		Comments: r.str(prefix + "_comments"),
	}
}

// FetchSteps pulls every approval step row.
func (w *Warehouse) FetchSteps(ctx context.Context) ([]governance.ApprovalStep, error) {
	rows, err := w.q.Query(ctx, `
		SELECT step_id, request_id, step_order, approver_employee_id, approver_name,
		       approver_title, status, approved_at, comments, is_final_step, created_at
		FROM governance.approval_steps
		ORDER BY request_id, step_order`)
	if err != nil {
		return nil, remoteErr("approval steps", err)
	}
	out := make([]governance.ApprovalStep, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeStep(r))
	}
	return out, nil
}

func decodeStep(r Row) governance.ApprovalStep {
	return governance.ApprovalStep{
		ID:                 r.int64("step_id"),
		RequestID:          r.int64("request_id"),
		Ordinal:            int(r.int64("step_order")),
		ApproverEmployeeID: r.int64("approver_employee_id"),
		ApproverName:       r.str("approver_name"),
		ApproverTitle:      r.str("approver_title"),
		Status:             governance.StepStatus(r.str("status")),
		ApprovedAt:         r.timePtr("approved_at"),
		Comments:           r.str("comments"),
		IsFinal:            r.boolean("is_final_step"),
		CreatedAt:          r.at("created_at"),
	}
}

// FetchAccounts pulls the account directory.
func (w *Warehouse) FetchAccounts(ctx context.Context) ([]governance.Account, error) {
	rows, err := w.q.Query(ctx, `
		SELECT account_id, account_name, theater, industry_segment
		FROM sfdc.accounts
		WHERE account_name IS NOT NULL`)
	if err != nil {
		return nil, remoteErr("accounts", err)
	}
	out := make([]governance.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, governance.Account{
			ID:              r.str("account_id"),
			Name:            r.str("account_name"),
			Theater:         r.str("theater"),
			IndustrySegment: r.str("industry_segment"),
		})
	}
	return out, nil
}

// =============================================================================
// REQUEST WRITE-BACK
// =============================================================================

// InsertRequest writes a new request row. The warehouse assigns the
// authoritative id; the caller's negative placeholder id is never sent.
func (w *Warehouse) InsertRequest(ctx context.Context, r governance.Request) error {
	err := w.q.Exec(ctx, `
		INSERT INTO governance.investment_requests
		(request_title, account_id, account_name, investment_type, requested_amount,
		 investment_quarter, business_justification, expected_outcome, risk_assessment,
		 created_by, created_by_name, created_by_employee_id, created_at,
		 theater, industry_segment, status, current_approval_level,
		 next_approver_id, next_approver_name, next_approver_title,
		 submitted_comment, submitted_by_name, submitted_at,
		 draft_comment, draft_by_name, draft_at,
		 on_behalf_of_employee_id, on_behalf_of_name, opportunity_link, expected_roi, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`,
		r.Title, r.AccountID, r.AccountName, r.InvestmentType, r.Amount.String(),
		r.Quarter, r.Justification, r.ExpectedOutcome, r.RiskAssessment,
		r.CreatedBy, r.CreatedByName, r.CreatedByEmployeeID, r.CreatedAt,
		r.Theater, r.IndustrySegment, string(r.Status), r.CurrentLevel,
		r.NextApproverID, r.NextApproverName, r.NextApproverTitle,
		r.SubmittedComment, r.SubmittedByName, r.SubmittedAt,
		r.DraftComment, r.DraftByName, r.DraftAt,
		r.OnBehalfOfEmployeeID, r.OnBehalfOfName, r.OpportunityLink, r.ExpectedROI, r.UpdatedAt)
	if err != nil {
		return remoteErr("insert request", err)
	}
	return nil
}

// UpdateRequest overwrites an existing request row in full.
func (w *Warehouse) UpdateRequest(ctx context.Context, r governance.Request) error {
	err := w.q.Exec(ctx, `
		UPDATE governance.investment_requests SET
		 request_title = $2, account_id = $3, account_name = $4, investment_type = $5,
		 requested_amount = $6, investment_quarter = $7, business_justification = $8,
		 expected_outcome = $9, risk_assessment = $10,
		 theater = $11, industry_segment = $12, status = $13, current_approval_level = $14,
		 next_approver_id = $15, next_approver_name = $16, next_approver_title = $17,
		 dm_approved_by = $18, dm_approved_by_title = $19, dm_approved_at = $20, dm_comments = $21,
		 rd_approved_by = $22, rd_approved_by_title = $23, rd_approved_at = $24, rd_comments = $25,
		 avp_approved_by = $26, avp_approved_by_title = $27, avp_approved_at = $28, avp_comments = $29,
		 gvp_approved_by = $30, gvp_approved_by_title = $31, gvp_approved_at = $32, gvp_comments = $33,
		 updated_at = $34,
		 withdrawn_by = $35, withdrawn_by_name = $36, withdrawn_at = $37, withdrawn_comment = $38,
		 submitted_comment = $39, submitted_by_name = $40, submitted_at = $41,
		 draft_comment = $42, draft_by_name = $43, draft_at = $44,
		 opportunity_link = $45, expected_roi = $46
		WHERE request_id = $1`,
		r.ID, r.Title, r.AccountID, r.AccountName, r.InvestmentType,
		r.Amount.String(), r.Quarter, r.Justification,
		r.ExpectedOutcome, r.RiskAssessment,
		r.Theater, r.IndustrySegment, string(r.Status), r.CurrentLevel,
		r.NextApproverID, r.NextApproverName, r.NextApproverTitle,
		r.DM.By, r.DM.ByTitle, r.DM.At, r.DM.Comments,
		r.RD.By, r.RD.ByTitle, r.RD.At, r.RD.Comments,
		r.AVP.By, r.AVP.ByTitle, r.AVP.At, r.AVP.Comments,
		r.GVP.By, r.GVP.ByTitle, r.GVP.At, r.GVP.Comments,
		r.UpdatedAt,
		r.WithdrawnBy, r.WithdrawnByName, r.WithdrawnAt, r.WithdrawnComment,
		r.SubmittedComment, r.SubmittedByName, r.SubmittedAt,
		r.DraftComment, r.DraftByName, r.DraftAt,
		r.OpportunityLink, r.ExpectedROI)
	if err != nil {
		return remoteErr("update request", err)
	}
	return nil
}

// DeleteRequest removes a request row plus its steps and opportunity links.
func (w *Warehouse) DeleteRequest(ctx context.Context, id int64) error {
	stmts := []string{
		"DELETE FROM governance.approval_steps WHERE request_id = $1",
		"DELETE FROM governance.request_opportunities WHERE request_id = $1",
		"DELETE FROM governance.investment_requests WHERE request_id = $1",
	}
	for _, stmt := range stmts {
		if err := w.q.Exec(ctx, stmt, id); err != nil {
			return remoteErr("delete request", err)
		}
	}
	return nil
}

// LatestRequestIDBy finds the newest warehouse id for a creator, used to
// relink child rows after a placeholder id is superseded.
func (w *Warehouse) LatestRequestIDBy(ctx context.Context, username string) (int64, error) {
	rows, err := w.q.Query(ctx, `
		SELECT request_id FROM governance.investment_requests
		WHERE created_by = $1 ORDER BY created_at DESC LIMIT 1`, username)
	if err != nil {
		return 0, remoteErr("latest request id", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].int64("request_id"), nil
}

// =============================================================================
// STEP WRITE-BACK
// =============================================================================

// ReplaceSteps rewrites one request's chain on the warehouse side.
func (w *Warehouse) ReplaceSteps(ctx context.Context, requestID int64, steps []governance.ApprovalStep) error {
	if err := w.q.Exec(ctx,
		"DELETE FROM governance.approval_steps WHERE request_id = $1", requestID); err != nil {
		return remoteErr("replace steps", err)
	}
	for _, st := range steps {
		err := w.q.Exec(ctx, `
			INSERT INTO governance.approval_steps
			(request_id, step_order, approver_employee_id, approver_name, approver_title,
			 status, approved_at, comments, is_final_step, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			requestID, st.Ordinal, st.ApproverEmployeeID, st.ApproverName, st.ApproverTitle,
			string(st.Status), st.ApprovedAt, st.Comments, st.IsFinal, st.CreatedAt)
		if err != nil {
			return remoteErr("replace steps", err)
		}
	}
	return nil
}

// MarkStepApproved mirrors a single step approval.
func (w *Warehouse) MarkStepApproved(ctx context.Context, requestID int64, ordinal int, comments string) error {
	err := w.q.Exec(ctx, `
		UPDATE governance.approval_steps
		SET status = 'APPROVED', approved_at = CURRENT_TIMESTAMP, comments = $3
		WHERE request_id = $1 AND step_order = $2`,
		requestID, ordinal, comments)
	if err != nil {
		return remoteErr("mark step approved", err)
	}
	return nil
}

// DeleteSteps removes one request's chain on the warehouse side.
func (w *Warehouse) DeleteSteps(ctx context.Context, requestID int64) error {
	if err := w.q.Exec(ctx,
		"DELETE FROM governance.approval_steps WHERE request_id = $1", requestID); err != nil {
		return remoteErr("delete steps", err)
	}
	return nil
}

// =============================================================================
// DIRECTORY (implements governance.Directory)
// =============================================================================

// Employee returns an active directory record, or nil.
func (w *Warehouse) Employee(ctx context.Context, employeeID int64) (*governance.Employee, error) {
	rows, err := w.q.Query(ctx, `
		SELECT employee_id, full_name, title, manager_id, department, is_manager
		FROM hr.employee_directory
		WHERE employee_id = $1 AND is_active = true`, employeeID)
	if err != nil {
		return nil, remoteErr("employee lookup", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeEmployee(rows[0]), nil
}

func decodeEmployee(r Row) *governance.Employee {
	return &governance.Employee{
		EmployeeID: r.int64("employee_id"),
		Name:       r.str("full_name"),
		Title:      r.str("title"),
		ManagerID:  r.int64Ptr("manager_id"),
		Department: r.str("department"),
		IsManager:  r.boolean("is_manager"),
	}
}

// FinalApproverFor returns the theater's final approver, or nil.
func (w *Warehouse) FinalApproverFor(ctx context.Context, theater string) (*governance.FinalApprover, error) {
	rows, err := w.q.Query(ctx, `
		SELECT theater, approver_employee_id, approver_name, approver_title
		FROM governance.final_approvers WHERE theater = $1`, theater)
	if err != nil {
		return nil, remoteErr("final approver lookup", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	return &governance.FinalApprover{
		Theater:    r.str("theater"),
		EmployeeID: r.int64("approver_employee_id"),
		Name:       r.str("approver_name"),
		Title:      r.str("approver_title"),
	}, nil
}

// IsFinalApprover reports whether an employee terminates any theater's chain.
func (w *Warehouse) IsFinalApprover(ctx context.Context, employeeID int64) (bool, error) {
	rows, err := w.q.Query(ctx, `
		SELECT 1 FROM governance.final_approvers
		WHERE approver_employee_id = $1 LIMIT 1`, employeeID)
	if err != nil {
		return false, remoteErr("final approver check", err)
	}
	return len(rows) > 0, nil
}

// SearchEmployees finds active employees by name substring.
func (w *Warehouse) SearchEmployees(ctx context.Context, q string, limit int) ([]governance.Employee, error) {
	rows, err := w.q.Query(ctx, `
		SELECT employee_id, full_name, title, manager_id, department, is_manager
		FROM hr.employee_directory
		WHERE is_active = true AND UPPER(full_name) LIKE UPPER($1)
		ORDER BY full_name LIMIT $2`, "%"+q+"%", limit)
	if err != nil {
		return nil, remoteErr("employee search", err)
	}
	out := make([]governance.Employee, 0, len(rows))
	for _, r := range rows {
		out = append(out, *decodeEmployee(r))
	}
	return out, nil
}

// =============================================================================
// OPPORTUNITIES AND BUDGETS (warehouse-only, never mirrored)
// =============================================================================

// Opportunities lists open opportunities for an account.
func (w *Warehouse) Opportunities(ctx context.Context, accountID string) ([]governance.Opportunity, error) {
	rows, err := w.q.Query(ctx, `
		SELECT opportunity_id, opportunity_name, account_id, account_name,
		       stage, amount, close_date, owner_name
		FROM sfdc.opportunities
		WHERE account_id = $1
		ORDER BY close_date`, accountID)
	if err != nil {
		return nil, remoteErr("opportunities", err)
	}
	out := make([]governance.Opportunity, 0, len(rows))
	for _, r := range rows {
		out = append(out, governance.Opportunity{
			ID:          r.str("opportunity_id"),
			Name:        r.str("opportunity_name"),
			AccountID:   r.str("account_id"),
			AccountName: r.str("account_name"),
			Stage:       r.str("stage"),
			Amount:      r.amountPtr("amount"),
			CloseDate:   r.timePtr("close_date"),
			OwnerName:   r.str("owner_name"),
		})
	}
	return out, nil
}

// LinkedOpportunityIDs returns the opportunity ids linked to a request.
func (w *Warehouse) LinkedOpportunityIDs(ctx context.Context, requestID int64) ([]string, error) {
	rows, err := w.q.Query(ctx, `
		SELECT opportunity_id FROM governance.request_opportunities
		WHERE request_id = $1`, requestID)
	if err != nil {
		return nil, remoteErr("linked opportunities", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.str("opportunity_id"))
	}
	return out, nil
}

// LinkOpportunity attaches an opportunity to a request.
func (w *Warehouse) LinkOpportunity(ctx context.Context, requestID int64, opportunityID string) error {
	err := w.q.Exec(ctx, `
		INSERT INTO governance.request_opportunities (request_id, opportunity_id)
		VALUES ($1, $2)
		ON CONFLICT (request_id, opportunity_id) DO NOTHING`,
		requestID, opportunityID)
	if err != nil {
		return remoteErr("link opportunity", err)
	}
	return nil
}

// UnlinkOpportunity detaches an opportunity from a request.
func (w *Warehouse) UnlinkOpportunity(ctx context.Context, requestID int64, opportunityID string) error {
	err := w.q.Exec(ctx, `
		DELETE FROM governance.request_opportunities
		WHERE request_id = $1 AND opportunity_id = $2`,
		requestID, opportunityID)
	if err != nil {
		return remoteErr("unlink opportunity", err)
	}
	return nil
}

// FetchBudgets lists budget rows for a fiscal year; empty year lists all.
func (w *Warehouse) FetchBudgets(ctx context.Context, fiscalYear string) ([]governance.Budget, error) {
	stmt := `
		SELECT budget_id, fiscal_year, theater, industry_segment, portfolio,
		       budget_amount, allocated_amount, q1_budget, q2_budget, q3_budget, q4_budget
		FROM governance.annual_budgets`
	var args []any
	if fiscalYear != "" {
		stmt += " WHERE fiscal_year = $1"
		args = append(args, fiscalYear)
	}
	stmt += " ORDER BY theater, industry_segment"

	rows, err := w.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, remoteErr("budgets", err)
	}
	out := make([]governance.Budget, 0, len(rows))
	for _, r := range rows {
		out = append(out, governance.Budget{
			ID:              r.int64("budget_id"),
			FiscalYear:      r.str("fiscal_year"),
			Theater:         r.str("theater"),
			IndustrySegment: r.str("industry_segment"),
			Portfolio:       r.str("portfolio"),
			BudgetAmount:    r.amount("budget_amount"),
			AllocatedAmount: r.amount("allocated_amount"),
			QuarterBudgets: [4]decimal.Decimal{
				r.amount("q1_budget"), r.amount("q2_budget"),
				r.amount("q3_budget"), r.amount("q4_budget"),
			},
		})
	}
	return out, nil
}
