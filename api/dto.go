/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes for the HTTP surface. Field names follow the warehouse
  column convention (upper snake case) because the frontend renders
  warehouse exports and API responses interchangeably.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Body: request body types from clients

SEE ALSO:
  - handlers.go: converts between these and governance types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vantage/governance-mirror/governance"
)

// =============================================================================
// REQUEST DTO
// =============================================================================

// RequestDTO is one investment request in API responses.
type RequestDTO struct {
	RequestID       int64  `json:"REQUEST_ID"`
	RequestTitle    string `json:"REQUEST_TITLE"`
	AccountID       string `json:"ACCOUNT_ID,omitempty"`
	AccountName     string `json:"ACCOUNT_NAME,omitempty"`
	InvestmentType  string `json:"INVESTMENT_TYPE,omitempty"`
	RequestedAmount string `json:"REQUESTED_AMOUNT"`
	Quarter         string `json:"INVESTMENT_QUARTER,omitempty"`
	Justification   string `json:"BUSINESS_JUSTIFICATION,omitempty"`
	ExpectedOutcome string `json:"EXPECTED_OUTCOME,omitempty"`
	RiskAssessment  string `json:"RISK_ASSESSMENT,omitempty"`

	CreatedBy           string `json:"CREATED_BY"`
	CreatedByName       string `json:"CREATED_BY_NAME"`
	CreatedByEmployeeID int64  `json:"CREATED_BY_EMPLOYEE_ID,omitempty"`
	CreatedAt           string `json:"CREATED_AT,omitempty"`

	Theater         string `json:"THEATER,omitempty"`
	IndustrySegment string `json:"INDUSTRY_SEGMENT,omitempty"`

	Status            string `json:"STATUS"`
	CurrentLevel      int    `json:"CURRENT_APPROVAL_LEVEL"`
	NextApproverID    *int64 `json:"NEXT_APPROVER_ID,omitempty"`
	NextApproverName  string `json:"NEXT_APPROVER_NAME,omitempty"`
	NextApproverTitle string `json:"NEXT_APPROVER_TITLE,omitempty"`

	DM  ApprovalFactDTO `json:"DM_APPROVAL"`
	RD  ApprovalFactDTO `json:"RD_APPROVAL"`
	AVP ApprovalFactDTO `json:"AVP_APPROVAL"`
	GVP ApprovalFactDTO `json:"GVP_APPROVAL"`

	UpdatedAt        string `json:"UPDATED_AT,omitempty"`
	WithdrawnBy      string `json:"WITHDRAWN_BY,omitempty"`
	WithdrawnByName  string `json:"WITHDRAWN_BY_NAME,omitempty"`
	WithdrawnAt      string `json:"WITHDRAWN_AT,omitempty"`
	WithdrawnComment string `json:"WITHDRAWN_COMMENT,omitempty"`

	SubmittedComment string `json:"SUBMITTED_COMMENT,omitempty"`
	SubmittedByName  string `json:"SUBMITTED_BY_NAME,omitempty"`
	SubmittedAt      string `json:"SUBMITTED_AT,omitempty"`

	DraftComment string `json:"DRAFT_COMMENT,omitempty"`
	DraftByName  string `json:"DRAFT_BY_NAME,omitempty"`
	DraftAt      string `json:"DRAFT_AT,omitempty"`

	OnBehalfOfEmployeeID *int64 `json:"ON_BEHALF_OF_EMPLOYEE_ID,omitempty"`
	OnBehalfOfName       string `json:"ON_BEHALF_OF_NAME,omitempty"`
	OpportunityLink      string `json:"SFDC_OPPORTUNITY_LINK,omitempty"`
	ExpectedROI          string `json:"EXPECTED_ROI,omitempty"`
}

// ApprovalFactDTO is one legacy approval slot.
type ApprovalFactDTO struct {
	ApprovedBy    string `json:"APPROVED_BY,omitempty"`
	ApproverTitle string `json:"APPROVED_BY_TITLE,omitempty"`
	ApprovedAt    string `json:"APPROVED_AT,omitempty"`
	Comments      string `json:"COMMENTS,omitempty"`
}

// ApprovalStepDTO is one chain position in API responses.
type ApprovalStepDTO struct {
	StepID             int64  `json:"STEP_ID"`
	RequestID          int64  `json:"REQUEST_ID"`
	StepOrder          int    `json:"STEP_ORDER"`
	ApproverEmployeeID int64  `json:"APPROVER_EMPLOYEE_ID"`
	ApproverName       string `json:"APPROVER_NAME"`
	ApproverTitle      string `json:"APPROVER_TITLE,omitempty"`
	Status             string `json:"STATUS"`
	ApprovedAt         string `json:"APPROVED_AT,omitempty"`
	Comments           string `json:"COMMENTS,omitempty"`
	IsFinalStep        bool   `json:"IS_FINAL_STEP"`
}

// RequestDetailDTO is a request with its chain.
type RequestDetailDTO struct {
	RequestDTO
	ApprovalSteps []ApprovalStepDTO `json:"APPROVAL_STEPS"`
}

// =============================================================================
// REQUEST BODIES
// =============================================================================

// RequestBody carries the editable fields for create/update.
type RequestBody struct {
	RequestTitle    string          `json:"REQUEST_TITLE"`
	AccountID       string          `json:"ACCOUNT_ID"`
	AccountName     string          `json:"ACCOUNT_NAME"`
	InvestmentType  string          `json:"INVESTMENT_TYPE"`
	RequestedAmount decimal.Decimal `json:"REQUESTED_AMOUNT"`
	Quarter         string          `json:"INVESTMENT_QUARTER"`
	Justification   string          `json:"BUSINESS_JUSTIFICATION"`
	ExpectedOutcome string          `json:"EXPECTED_OUTCOME"`
	RiskAssessment  string          `json:"RISK_ASSESSMENT"`
	Theater         string          `json:"THEATER"`
	IndustrySegment string          `json:"INDUSTRY_SEGMENT"`
	OpportunityLink string          `json:"SFDC_OPPORTUNITY_LINK"`
	ExpectedROI     string          `json:"EXPECTED_ROI"`
	AutoSubmit      bool            `json:"AUTO_SUBMIT"`
	SubmitComment   string          `json:"SUBMIT_COMMENT"`
	DraftComment    string          `json:"DRAFT_COMMENT"`
}

// CommentBody carries the optional comment of an approval action.
// Clients historically send either key.
type CommentBody struct {
	Comments string `json:"COMMENTS"`
	Comment  string `json:"COMMENT"`
}

func (b CommentBody) text() string {
	if b.Comments != "" {
		return b.Comments
	}
	return b.Comment
}

// ReviseBody carries a revision of a rejected request.
type ReviseBody struct {
	Justification   string `json:"BUSINESS_JUSTIFICATION"`
	ExpectedOutcome string `json:"EXPECTED_OUTCOME"`
	RiskAssessment  string `json:"RISK_ASSESSMENT"`
	Submit          bool   `json:"SUBMIT"`
	Comment         string `json:"COMMENT"`
}

// ImpersonateBody names the employee to act as.
type ImpersonateBody struct {
	EmployeeID int64 `json:"EMPLOYEE_ID"`
}

// LinkOpportunityBody names the opportunity to link.
type LinkOpportunityBody struct {
	OpportunityID string `json:"OPPORTUNITY_ID"`
}

// =============================================================================
// DIRECTORY DTOS
// =============================================================================

// UserDTO is the effective identity plus UI flags.
type UserDTO struct {
	Username        string `json:"USERNAME"`
	EmployeeID      int64  `json:"EMPLOYEE_ID"`
	DisplayName     string `json:"DISPLAY_NAME"`
	Title           string `json:"TITLE,omitempty"`
	Role            string `json:"ROLE"`
	Theater         string `json:"THEATER,omitempty"`
	IndustrySegment string `json:"INDUSTRY_SEGMENT,omitempty"`
	ManagerName     string `json:"MANAGER_NAME,omitempty"`
	ApprovalLevel   int    `json:"APPROVAL_LEVEL"`
	IsFinalApprover bool   `json:"IS_FINAL_APPROVER"`
	IsImpersonating bool   `json:"IS_IMPERSONATING"`
	IsAdmin         bool   `json:"IS_ADMIN"`
}

// AccountDTO is one account directory entry.
type AccountDTO struct {
	AccountID       string `json:"ACCOUNT_ID"`
	AccountName     string `json:"ACCOUNT_NAME"`
	Theater         string `json:"THEATER,omitempty"`
	IndustrySegment string `json:"INDUSTRY_SEGMENT,omitempty"`
}

// AccountSearchDTO wraps account matches with the total count.
type AccountSearchDTO struct {
	Accounts     []AccountDTO `json:"accounts"`
	TotalMatches int          `json:"total_matches"`
}

// EmployeeDTO is one directory search hit.
type EmployeeDTO struct {
	EmployeeID int64  `json:"EMPLOYEE_ID"`
	Name       string `json:"NAME"`
	Title      string `json:"TITLE,omitempty"`
	Department string `json:"DEPARTMENT,omitempty"`
}

// OpportunityDTO is one warehouse opportunity.
type OpportunityDTO struct {
	OpportunityID string `json:"OPPORTUNITY_ID"`
	Name          string `json:"OPPORTUNITY_NAME"`
	AccountID     string `json:"ACCOUNT_ID"`
	AccountName   string `json:"ACCOUNT_NAME,omitempty"`
	Stage         string `json:"STAGE,omitempty"`
	Amount        string `json:"AMOUNT,omitempty"`
	CloseDate     string `json:"CLOSE_DATE,omitempty"`
	OwnerName     string `json:"OWNER_NAME,omitempty"`
}

// BudgetDTO is one annual budget row.
type BudgetDTO struct {
	BudgetID        int64  `json:"BUDGET_ID"`
	FiscalYear      string `json:"FISCAL_YEAR"`
	Theater         string `json:"THEATER"`
	IndustrySegment string `json:"INDUSTRY_SEGMENT,omitempty"`
	Portfolio       string `json:"PORTFOLIO,omitempty"`
	BudgetAmount    string `json:"BUDGET_AMOUNT"`
	AllocatedAmount string `json:"ALLOCATED_AMOUNT"`
	Q1Budget        string `json:"Q1_BUDGET"`
	Q2Budget        string `json:"Q2_BUDGET"`
	Q3Budget        string `json:"Q3_BUDGET"`
	Q4Budget        string `json:"Q4_BUDGET"`
}

// SummaryDTO aggregates the mirror for the dashboard.
type SummaryDTO struct {
	Total                int    `json:"TOTAL_REQUESTS"`
	Draft                int    `json:"TOTAL_DRAFT"`
	InReview             int    `json:"TOTAL_IN_REVIEW"`
	Approved             int    `json:"TOTAL_APPROVED"`
	Rejected             int    `json:"TOTAL_REJECTED"`
	PendingMyApproval    int    `json:"TOTAL_PENDING_MY_APPROVAL"`
	TotalRequestedAmount string `json:"TOTAL_REQUESTED_AMOUNT"`
	TotalApprovedAmount  string `json:"TOTAL_APPROVED_AMOUNT"`
}

// ErrorResponse is the error envelope for all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func fmtTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtTSPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toFactDTO(f governance.ApprovalFact) ApprovalFactDTO {
	return ApprovalFactDTO{
		ApprovedBy:    f.By,
		ApproverTitle: f.ByTitle,
		ApprovedAt:    fmtTSPtr(f.At),
		Comments:      f.Comments,
	}
}

func toRequestDTO(r governance.Request) RequestDTO {
	return RequestDTO{
		RequestID:       r.ID,
		RequestTitle:    r.Title,
		AccountID:       r.AccountID,
		AccountName:     r.AccountName,
		InvestmentType:  r.InvestmentType,
		RequestedAmount: r.Amount.String(),
		Quarter:         r.Quarter,
		Justification:   r.Justification,
		ExpectedOutcome: r.ExpectedOutcome,
		RiskAssessment:  r.RiskAssessment,

		CreatedBy:           r.CreatedBy,
		CreatedByName:       r.CreatedByName,
		CreatedByEmployeeID: r.CreatedByEmployeeID,
		CreatedAt:           fmtTS(r.CreatedAt),

		Theater:         r.Theater,
		IndustrySegment: r.IndustrySegment,

		Status:            string(r.Status),
		CurrentLevel:      r.CurrentLevel,
		NextApproverID:    r.NextApproverID,
		NextApproverName:  r.NextApproverName,
		NextApproverTitle: r.NextApproverTitle,

		DM:  toFactDTO(r.DM),
		RD:  toFactDTO(r.RD),
		AVP: toFactDTO(r.AVP),
		GVP: toFactDTO(r.GVP),

		UpdatedAt:        fmtTS(r.UpdatedAt),
		WithdrawnBy:      r.WithdrawnBy,
		WithdrawnByName:  r.WithdrawnByName,
		WithdrawnAt:      fmtTSPtr(r.WithdrawnAt),
		WithdrawnComment: r.WithdrawnComment,

		SubmittedComment: r.SubmittedComment,
		SubmittedByName:  r.SubmittedByName,
		SubmittedAt:      fmtTSPtr(r.SubmittedAt),

		DraftComment: r.DraftComment,
		DraftByName:  r.DraftByName,
		DraftAt:      fmtTSPtr(r.DraftAt),

		OnBehalfOfEmployeeID: r.OnBehalfOfEmployeeID,
		OnBehalfOfName:       r.OnBehalfOfName,
		OpportunityLink:      r.OpportunityLink,
		ExpectedROI:          r.ExpectedROI,
	}
}

func toStepDTO(st governance.ApprovalStep) ApprovalStepDTO {
	return ApprovalStepDTO{
		StepID:             st.ID,
		RequestID:          st.RequestID,
		StepOrder:          st.Ordinal,
		ApproverEmployeeID: st.ApproverEmployeeID,
		ApproverName:       st.ApproverName,
		ApproverTitle:      st.ApproverTitle,
		Status:             string(st.Status),
		ApprovedAt:         fmtTSPtr(st.ApprovedAt),
		Comments:           st.Comments,
		IsFinalStep:        st.IsFinal,
	}
}

func toRequestInput(b RequestBody) governance.RequestInput {
	return governance.RequestInput{
		Title:           b.RequestTitle,
		AccountID:       b.AccountID,
		AccountName:     b.AccountName,
		InvestmentType:  b.InvestmentType,
		Amount:          b.RequestedAmount,
		Quarter:         b.Quarter,
		Justification:   b.Justification,
		ExpectedOutcome: b.ExpectedOutcome,
		RiskAssessment:  b.RiskAssessment,
		Theater:         b.Theater,
		IndustrySegment: b.IndustrySegment,
		OpportunityLink: b.OpportunityLink,
		ExpectedROI:     b.ExpectedROI,
		AutoSubmit:      b.AutoSubmit,
		SubmitComment:   b.SubmitComment,
		DraftComment:    b.DraftComment,
	}
}

func toUserDTO(u governance.EffectiveUser) UserDTO {
	return UserDTO{
		Username:        u.Username,
		EmployeeID:      u.EmployeeID,
		DisplayName:     u.DisplayName,
		Title:           u.Title,
		Role:            u.Role,
		Theater:         u.Theater,
		IndustrySegment: u.IndustrySegment,
		ManagerName:     u.ManagerName,
		ApprovalLevel:   u.ApprovalLevel,
		IsFinalApprover: u.IsFinalApprover,
		IsImpersonating: u.IsImpersonating,
		IsAdmin:         u.IsAdmin,
	}
}
