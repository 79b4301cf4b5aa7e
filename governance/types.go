/*
types.go - Core data model for the governance mirror

PURPOSE:
  Value types shared by the cache store, the remote warehouse adapter and
  the service layer. These mirror the warehouse row shapes; the local
  store persists them verbatim so a full re-pull can replace rows
  byte-for-byte.

IDENTIFIER CONVENTION:
  Request IDs are positive when assigned by the warehouse and negative
  when assigned locally as optimistic placeholders. A negative ID is
  superseded by the authoritative positive one on the next re-pull, so it
  must never be held across a background reconciliation.

SEE ALSO:
  - store/sqlite: persistence of these types
  - remote: warehouse row decoding into these types
*/
package governance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUEST
// =============================================================================

// ApprovalFact records one legacy per-level approval: who, when, and with
// what comment. Empty By means the slot is unset.
type ApprovalFact struct {
	By       string
	ByTitle  string
	At       *time.Time
	Comments string
}

// Clear resets the slot. Used by withdraw and send-back, which reset the
// whole legacy track.
func (f *ApprovalFact) Clear() {
	*f = ApprovalFact{}
}

// Set fills the slot from an approval action.
func (f *ApprovalFact) Set(by, title string, at time.Time, comments string) {
	f.By = by
	f.ByTitle = title
	f.At = &at
	f.Comments = comments
}

// Request is the unit of work: an investment request moving through the
// approval lifecycle. Field shape follows the warehouse table, which the
// mirror replicates column-for-column.
type Request struct {
	ID              int64
	Title           string
	AccountID       string
	AccountName     string
	InvestmentType  string
	Amount          decimal.Decimal
	Quarter         string
	Justification   string
	ExpectedOutcome string
	RiskAssessment  string

	CreatedBy           string // warehouse username
	CreatedByName       string
	CreatedByEmployeeID int64
	CreatedAt           time.Time

	Theater         string
	IndustrySegment string

	// Status and CurrentLevel move together; see status.go.
	Status       Status
	CurrentLevel int

	NextApproverID    *int64
	NextApproverName  string
	NextApproverTitle string

	// Legacy per-level approval facts, one slot per fixed level.
	DM  ApprovalFact
	RD  ApprovalFact
	AVP ApprovalFact
	GVP ApprovalFact

	UpdatedAt time.Time

	WithdrawnBy      string
	WithdrawnByName  string
	WithdrawnAt      *time.Time
	WithdrawnComment string

	SubmittedComment string
	SubmittedByName  string
	SubmittedAt      *time.Time

	DraftComment string
	DraftByName  string
	DraftAt      *time.Time

	// Set when an administrator created the request while impersonating.
	OnBehalfOfEmployeeID *int64
	OnBehalfOfName       string

	OpportunityLink string
	ExpectedROI     string
}

// Slot returns a pointer to the legacy fact slot, or nil for SlotNone.
func (r *Request) Slot(s LegacySlot) *ApprovalFact {
	switch s {
	case SlotDM:
		return &r.DM
	case SlotRD:
		return &r.RD
	case SlotAVP:
		return &r.AVP
	case SlotGVP:
		return &r.GVP
	default:
		return nil
	}
}

// ClearApprovalTrack resets every legacy slot and the next-approver fields.
func (r *Request) ClearApprovalTrack() {
	r.DM.Clear()
	r.RD.Clear()
	r.AVP.Clear()
	r.GVP.Clear()
	r.NextApproverID = nil
	r.NextApproverName = ""
	r.NextApproverTitle = ""
}

// SubmitterEmployeeID is the employee the approval chain is resolved for:
// the on-behalf-of delegate when present, else the creator.
func (r *Request) SubmitterEmployeeID() int64 {
	if r.OnBehalfOfEmployeeID != nil {
		return *r.OnBehalfOfEmployeeID
	}
	return r.CreatedByEmployeeID
}

// =============================================================================
// APPROVAL STEP
// =============================================================================

// ApprovalStep is one position in a resolved approval chain.
// Invariants: ordinals are contiguous from 1, and at most one step per
// request is PENDING at any time.
type ApprovalStep struct {
	ID                 int64
	RequestID          int64
	Ordinal            int // 1-based position in the chain
	ApproverEmployeeID int64
	ApproverName       string
	ApproverTitle      string
	Status             StepStatus
	ApprovedAt         *time.Time
	Comments           string
	IsFinal            bool
	CreatedAt          time.Time
}

// ChainLink is one resolved approver in a reporting-hierarchy walk.
// Level 2 is the employee's direct manager (the employee itself is level 1
// and never part of its own chain).
type ChainLink struct {
	EmployeeID int64  `json:"employee_id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Level      int    `json:"level"`
	IsFinal    bool   `json:"is_final"`
}

// =============================================================================
// IDENTITY
// =============================================================================

// UserProfile is the acting identity for an operation. Computed per call
// by the identity resolver, never persisted outside the current-user cache.
type UserProfile struct {
	Username        string
	EmployeeID      int64
	DisplayName     string
	Title           string
	Role            string
	Theater         string
	IndustrySegment string
	ManagerID       *int64
	ManagerName     string
	ApprovalLevel   int
	IsFinalApprover bool
}

// Employee is a directory record from the reporting hierarchy.
type Employee struct {
	EmployeeID int64
	Name       string
	Title      string
	ManagerID  *int64
	Department string
	IsManager  bool
}

// FinalApprover is the per-theater chain terminator.
type FinalApprover struct {
	Theater    string
	EmployeeID int64
	Name       string
	Title      string
}

// =============================================================================
// DIRECTORY DATA
// =============================================================================

// Account is an entry in the mirrored account directory.
type Account struct {
	ID              string
	Name            string
	Theater         string
	IndustrySegment string
}

// Opportunity is a sales opportunity, queried from the warehouse only.
type Opportunity struct {
	ID          string
	Name        string
	AccountID   string
	AccountName string
	Stage       string
	Amount      *decimal.Decimal
	CloseDate   *time.Time
	OwnerName   string
}

// Budget is an annual budget row, queried from the warehouse only.
type Budget struct {
	ID              int64
	FiscalYear      string
	Theater         string
	IndustrySegment string
	Portfolio       string
	BudgetAmount    decimal.Decimal
	AllocatedAmount decimal.Decimal
	QuarterBudgets  [4]decimal.Decimal
}

// =============================================================================
// QUERY SHAPES
// =============================================================================

// RequestFilter narrows ListRequests. Empty fields match everything.
type RequestFilter struct {
	Theater         string
	IndustrySegment string
	Quarter         string
	Status          Status
}

// Summary aggregates the mirror for the dashboard.
type Summary struct {
	Total             int
	Draft             int
	InReview          int
	Approved          int
	Rejected          int
	PendingMyApproval int
	TotalRequested    decimal.Decimal
	TotalApproved     decimal.Decimal
}
