/*
service.go - The governance engine's operation surface

PURPOSE:
  Every operation the API exposes runs through here. Reads come from the
  local cache; mutations follow one pattern throughout:

    1. validate against the cached row (client errors surface here),
    2. write the full updated row to the cache synchronously,
    3. enqueue a background write-back that mirrors the change to the
       warehouse, after which the reconciler re-pulls requests and steps.

  Step 3 never reports into the caller's response: a failed write-back is
  logged, and the follow-up re-pull reverts the optimistic row.

APPROVAL DISPATCH:
  A request with at least one ApprovalStep row uses the dynamic chain:
  approve the lowest pending step, mirror ordinals 1-4 into the legacy
  dm/rd/avp/gvp slots, finish on the final step. A request with no steps
  falls back to the fixed four-level table in status.go.

SEE ALSO:
  - status.go: the legacy transition table
  - chain.go: chain resolution on submit
  - mirror/reconciler.go: the write-back queue
*/
package governance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	searchResultLimit = 20
	employeeSearchTTL = 5 * time.Minute
)

// CacheStore is the local mirror surface the service reads and writes.
// Implemented by store/sqlite.
type CacheStore interface {
	CurrentUserSource

	SaveRequest(ctx context.Context, r Request) error
	GetRequest(ctx context.Context, id int64) (*Request, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]Request, error)
	DeleteRequest(ctx context.Context, id int64) error
	NextTempID(ctx context.Context) (int64, error)

	StepsForRequest(ctx context.Context, requestID int64) ([]ApprovalStep, error)
	SetSteps(ctx context.Context, requestID int64, steps []ApprovalStep) error
	DeleteSteps(ctx context.Context, requestID int64) error
	ApproveStep(ctx context.Context, requestID int64, ordinal int, at time.Time, comments string) error

	SearchAccounts(ctx context.Context, q string, limit int) ([]Account, int, error)
	TheaterIndustryLookup(ctx context.Context) (theaters, industries []string, byTheater map[string][]string, err error)
	Summary(ctx context.Context, currentUserName string) (*Summary, error)
}

// RemoteStore is the warehouse write-back and warehouse-only read surface.
// Implemented by remote.Warehouse.
type RemoteStore interface {
	Directory

	InsertRequest(ctx context.Context, r Request) error
	UpdateRequest(ctx context.Context, r Request) error
	DeleteRequest(ctx context.Context, id int64) error
	ReplaceSteps(ctx context.Context, requestID int64, steps []ApprovalStep) error
	MarkStepApproved(ctx context.Context, requestID int64, ordinal int, comments string) error
	DeleteSteps(ctx context.Context, requestID int64) error
	LatestRequestIDBy(ctx context.Context, username string) (int64, error)

	IsFinalApprover(ctx context.Context, employeeID int64) (bool, error)
	SearchEmployees(ctx context.Context, q string, limit int) ([]Employee, error)
	Opportunities(ctx context.Context, accountID string) ([]Opportunity, error)
	LinkedOpportunityIDs(ctx context.Context, requestID int64) ([]string, error)
	LinkOpportunity(ctx context.Context, requestID int64, opportunityID string) error
	UnlinkOpportunity(ctx context.Context, requestID int64, opportunityID string) error
	FetchBudgets(ctx context.Context, fiscalYear string) ([]Budget, error)
}

// Syncer schedules background write-backs. Implemented by mirror.Reconciler.
type Syncer interface {
	Enqueue(name string, fn func(ctx context.Context) error)
}

// Service executes governance operations against the mirror.
type Service struct {
	cache    CacheStore
	remote   RemoteStore
	chain    *ChainResolver
	identity *IdentityResolver
	syncer   Syncer
	log      zerolog.Logger
	now      func() time.Time

	empMu     sync.Mutex
	empCache  map[string][]Employee
	empCached map[string]time.Time
}

// NewService wires the engine.
func NewService(cache CacheStore, remote RemoteStore, chain *ChainResolver, identity *IdentityResolver, syncer Syncer, log zerolog.Logger) *Service {
	return &Service{
		cache:     cache,
		remote:    remote,
		chain:     chain,
		identity:  identity,
		syncer:    syncer,
		log:       log.With().Str("component", "service").Logger(),
		now:       time.Now,
		empCache:  make(map[string][]Employee),
		empCached: make(map[string]time.Time),
	}
}

// Identity exposes the resolver for the API's impersonation-status route.
func (s *Service) Identity() *IdentityResolver {
	return s.identity
}

// =============================================================================
// IDENTITY OPERATIONS
// =============================================================================

// EffectiveUser is the profile reads and writes execute as, plus flags
// the UI needs that never persist.
type EffectiveUser struct {
	UserProfile
	IsImpersonating bool
	IsAdmin         bool
}

// GetEffectiveUser returns the acting identity.
func (s *Service) GetEffectiveUser(ctx context.Context) (*EffectiveUser, error) {
	profile, err := s.identity.Effective(ctx)
	if err != nil {
		return nil, err
	}
	return &EffectiveUser{
		UserProfile:     *profile,
		IsImpersonating: s.identity.Impersonating() != nil,
		IsAdmin:         s.identity.IsAdmin(ctx),
	}, nil
}

// Impersonate makes the administrator act as the given employee.
func (s *Service) Impersonate(ctx context.Context, employeeID int64) (*UserProfile, error) {
	if !s.identity.IsAdmin(ctx) {
		return nil, ErrForbidden
	}
	emp, err := s.remote.Employee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, fmt.Errorf("employee %d: %w", employeeID, ErrNotFound)
	}
	isFA, err := s.remote.IsFinalApprover(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	role := "USER"
	level := 0
	switch {
	case isFA:
		role = "FINAL_APPROVER"
		level = 99
	case emp.IsManager:
		role = "MANAGER"
	}
	profile := UserProfile{
		Username:        usernameFor(emp.Name),
		EmployeeID:      emp.EmployeeID,
		DisplayName:     emp.Name,
		Title:           emp.Title,
		Role:            role,
		Theater:         emp.Department,
		ManagerID:       emp.ManagerID,
		ApprovalLevel:   level,
		IsFinalApprover: isFA,
	}
	if err := s.identity.Impersonate(ctx, profile); err != nil {
		return nil, err
	}
	s.log.Info().Int64("employee_id", employeeID).Str("as", emp.Name).Msg("impersonation started")
	return &profile, nil
}

// StopImpersonate clears the override and returns the real profile.
func (s *Service) StopImpersonate(ctx context.Context) (*UserProfile, error) {
	s.identity.StopImpersonate()
	return s.identity.Real(ctx)
}

// usernameFor derives the warehouse username convention: first initial
// plus last name, upper-cased.
func usernameFor(displayName string) string {
	parts := strings.Fields(displayName)
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return strings.ToUpper(parts[0])
	}
	last := strings.Join(parts[1:], "")
	return strings.ToUpper(parts[0][:1] + last)
}

// =============================================================================
// REQUEST READS
// =============================================================================

// ListRequests returns mirrored requests matching the filter.
func (s *Service) ListRequests(ctx context.Context, f RequestFilter) ([]Request, error) {
	return s.cache.ListRequests(ctx, f)
}

// RequestDetail is one request with its resolved chain.
type RequestDetail struct {
	Request Request
	Steps   []ApprovalStep
}

// GetRequest returns one request and its approval steps.
func (s *Service) GetRequest(ctx context.Context, id int64) (*RequestDetail, error) {
	r, err := s.cache.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	steps, err := s.cache.StepsForRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RequestDetail{Request: *r, Steps: steps}, nil
}

// Summary aggregates the mirror for the effective user.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	name := ""
	if u, err := s.identity.Effective(ctx); err == nil {
		name = u.DisplayName
	}
	return s.cache.Summary(ctx, name)
}

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// RequestInput carries the caller-editable request fields.
type RequestInput struct {
	Title           string
	AccountID       string
	AccountName     string
	InvestmentType  string
	Amount          decimal.Decimal
	Quarter         string
	Justification   string
	ExpectedOutcome string
	RiskAssessment  string
	Theater         string
	IndustrySegment string
	OpportunityLink string
	ExpectedROI     string

	AutoSubmit    bool
	SubmitComment string

	// DraftComment annotates an edit without changing status.
	DraftComment string
}

// CreateResult reports a freshly created request. The id is a negative
// placeholder; it is superseded once the background reconciliation pulls
// the warehouse-assigned id.
type CreateResult struct {
	RequestID int64
	Submitted bool
	Chain     []ChainLink
}

// CreateRequest creates a draft (optionally auto-submitting it), writes
// it to the cache under a placeholder id, and schedules the warehouse
// insert.
func (s *Service) CreateRequest(ctx context.Context, in RequestInput) (*CreateResult, error) {
	user, err := s.identity.Effective(ctx)
	if err != nil {
		return nil, err
	}
	impersonating := s.identity.Impersonating() != nil

	tempID, err := s.cache.NextTempID(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	r := Request{
		ID:                  tempID,
		Title:               in.Title,
		AccountID:           in.AccountID,
		AccountName:         in.AccountName,
		InvestmentType:      in.InvestmentType,
		Amount:              in.Amount,
		Quarter:             in.Quarter,
		Justification:       in.Justification,
		ExpectedOutcome:     in.ExpectedOutcome,
		RiskAssessment:      in.RiskAssessment,
		CreatedBy:           user.Username,
		CreatedByName:       user.DisplayName,
		CreatedByEmployeeID: user.EmployeeID,
		CreatedAt:           now,
		Theater:             in.Theater,
		IndustrySegment:     in.IndustrySegment,
		Status:              StatusDraft,
		CurrentLevel:        0,
		NextApproverName:    user.ManagerName,
		UpdatedAt:           now,
		OpportunityLink:     in.OpportunityLink,
		ExpectedROI:         in.ExpectedROI,
	}
	if impersonating {
		// Marks the row as filed by an administrator for this employee.
		eid := user.EmployeeID
		r.OnBehalfOfEmployeeID = &eid
		r.OnBehalfOfName = user.DisplayName
	}

	var chain []ChainLink
	if in.AutoSubmit {
		chain, err = s.resolveChainFor(ctx, &r)
		if err != nil {
			return nil, err
		}
		s.applySubmission(&r, chain, in.SubmitComment, user.DisplayName, now)
	}

	if err := s.cache.SaveRequest(ctx, r); err != nil {
		return nil, err
	}
	if len(chain) > 0 {
		if err := s.cache.SetSteps(ctx, r.ID, stepsFromChain(r.ID, chain, now)); err != nil {
			return nil, err
		}
	}

	row := r
	chainCopy := append([]ChainLink(nil), chain...)
	s.syncer.Enqueue("create request", func(ctx context.Context) error {
		if err := s.remote.InsertRequest(ctx, row); err != nil {
			return err
		}
		if len(chainCopy) == 0 {
			return nil
		}
		// The warehouse assigned its own id; find it by creator so the
		// chain attaches to the durable row.
		newID, err := s.remote.LatestRequestIDBy(ctx, row.CreatedBy)
		if err != nil {
			return err
		}
		if newID == 0 {
			return fmt.Errorf("created request not found for %s", row.CreatedBy)
		}
		return s.remote.ReplaceSteps(ctx, newID, stepsFromChain(newID, chainCopy, row.CreatedAt))
	})

	s.log.Info().Int64("request_id", tempID).Bool("submitted", in.AutoSubmit).Msg("request created")
	return &CreateResult{RequestID: tempID, Submitted: in.AutoSubmit, Chain: chain}, nil
}

// UpdateRequest overwrites the editable fields of a DRAFT request.
func (s *Service) UpdateRequest(ctx context.Context, id int64, in RequestInput) error {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusDraft {
		return &InvalidStateError{Op: "update", Status: r.Status}
	}

	r.Title = in.Title
	r.AccountID = in.AccountID
	r.AccountName = in.AccountName
	r.InvestmentType = in.InvestmentType
	r.Amount = in.Amount
	r.Quarter = in.Quarter
	r.Justification = in.Justification
	r.ExpectedOutcome = in.ExpectedOutcome
	r.RiskAssessment = in.RiskAssessment
	r.Theater = in.Theater
	r.IndustrySegment = in.IndustrySegment
	r.OpportunityLink = in.OpportunityLink
	r.ExpectedROI = in.ExpectedROI
	now := s.now()
	r.UpdatedAt = now

	if in.DraftComment != "" {
		user, err := s.identity.Effective(ctx)
		if err != nil {
			return err
		}
		r.DraftComment = in.DraftComment
		r.DraftByName = user.DisplayName
		r.DraftAt = &now
	}

	return s.saveAndSync(ctx, *r, "update request")
}

// DeleteRequest removes a DRAFT request everywhere.
func (s *Service) DeleteRequest(ctx context.Context, id int64) error {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusDraft {
		return &InvalidStateError{Op: "delete", Status: r.Status}
	}

	if err := s.cache.DeleteRequest(ctx, id); err != nil {
		return err
	}
	s.syncer.Enqueue("delete request", func(ctx context.Context) error {
		if id < 0 {
			// Placeholder rows never reached the warehouse.
			return nil
		}
		return s.remote.DeleteRequest(ctx, id)
	})
	return nil
}

// Submit moves a DRAFT into review, resolving and installing its chain.
func (s *Service) Submit(ctx context.Context, id int64, comment string) ([]ChainLink, error) {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusDraft {
		return nil, &InvalidStateError{Op: "submit", Status: r.Status}
	}

	user, err := s.identity.Effective(ctx)
	if err != nil {
		return nil, err
	}
	chain, err := s.resolveChainFor(ctx, r)
	if err != nil {
		return nil, err
	}
	now := s.now()
	s.applySubmission(r, chain, comment, user.DisplayName, now)

	// Steps land before the parent flips to SUBMITTED so no reader sees
	// an in-review request without its chain.
	if len(chain) > 0 {
		if err := s.cache.SetSteps(ctx, id, stepsFromChain(id, chain, now)); err != nil {
			return nil, err
		}
	}
	if err := s.cache.SaveRequest(ctx, *r); err != nil {
		return nil, err
	}

	row := *r
	chainCopy := append([]ChainLink(nil), chain...)
	s.syncer.Enqueue("submit request", func(ctx context.Context) error {
		if err := s.remote.UpdateRequest(ctx, row); err != nil {
			return err
		}
		return s.remote.ReplaceSteps(ctx, row.ID, stepsFromChain(row.ID, chainCopy, now))
	})
	return chain, nil
}

// Withdraw pulls an in-review request back to DRAFT, clearing the whole
// approval track. The audit fields record the real caller, even under
// impersonation.
func (s *Service) Withdraw(ctx context.Context, id int64, comment string) error {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if !r.Status.InReview() {
		return &InvalidStateError{Op: "withdraw", Status: r.Status}
	}

	actor, err := s.identity.Real(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	r.Status = StatusDraft
	r.CurrentLevel = 0
	r.ClearApprovalTrack()
	r.WithdrawnBy = actor.Username
	r.WithdrawnByName = actor.DisplayName
	r.WithdrawnAt = &now
	r.WithdrawnComment = comment
	r.UpdatedAt = now

	if err := s.cache.SaveRequest(ctx, *r); err != nil {
		return err
	}
	if err := s.cache.DeleteSteps(ctx, id); err != nil {
		return err
	}

	row := *r
	s.syncer.Enqueue("withdraw request", func(ctx context.Context) error {
		if err := s.remote.DeleteSteps(ctx, row.ID); err != nil {
			return err
		}
		return s.remote.UpdateRequest(ctx, row)
	})
	return nil
}

// =============================================================================
// APPROVAL ACTIONS
// =============================================================================

// Approve advances a request one step: the dynamic chain when steps
// exist, the fixed legacy table otherwise.
func (s *Service) Approve(ctx context.Context, id int64, comments string) (Status, error) {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return "", err
	}
	steps, err := s.cache.StepsForRequest(ctx, id)
	if err != nil {
		return "", err
	}
	user, err := s.identity.Effective(ctx)
	if err != nil {
		return "", err
	}

	if len(steps) > 0 {
		return s.approveDynamic(ctx, r, steps, user, comments)
	}
	return s.approveLegacy(ctx, r, user, comments)
}

func (s *Service) approveDynamic(ctx context.Context, r *Request, steps []ApprovalStep, user *UserProfile, comments string) (Status, error) {
	// A rejected or sent-back request keeps its chain; pending steps alone
	// do not make it approvable.
	if !r.Status.InReview() {
		return "", &InvalidStateError{Op: "approve", Status: r.Status}
	}

	var current *ApprovalStep
	for i := range steps {
		if steps[i].Status == StepPending {
			current = &steps[i]
			break
		}
	}
	if current == nil {
		return "", &InvalidStateError{Op: "approve", Status: r.Status}
	}

	now := s.now()
	ordinal := current.Ordinal

	if err := s.cache.ApproveStep(ctx, r.ID, ordinal, now, comments); err != nil {
		return "", err
	}

	if current.IsFinal {
		r.Status = StatusFinalApproved
		r.CurrentLevel = ordinal
		r.NextApproverID = nil
		r.NextApproverName = ""
		r.NextApproverTitle = ""
	} else {
		r.Status = StatusSubmitted
		r.CurrentLevel = ordinal + 1
		r.NextApproverID = nil
		r.NextApproverName = ""
		r.NextApproverTitle = ""
		for i := range steps {
			if steps[i].Ordinal == ordinal+1 {
				eid := steps[i].ApproverEmployeeID
				r.NextApproverID = &eid
				r.NextApproverName = steps[i].ApproverName
				r.NextApproverTitle = steps[i].ApproverTitle
				break
			}
		}
	}

	// Steps 1-4 keep the legacy reporting columns in sync.
	if fact := r.Slot(SlotForStep(ordinal)); fact != nil {
		fact.Set(user.DisplayName, user.Title, now, comments)
	}
	r.UpdatedAt = now

	if err := s.cache.SaveRequest(ctx, *r); err != nil {
		return "", err
	}

	row := *r
	s.syncer.Enqueue("approve step", func(ctx context.Context) error {
		if err := s.remote.MarkStepApproved(ctx, row.ID, ordinal, comments); err != nil {
			return err
		}
		return s.remote.UpdateRequest(ctx, row)
	})

	s.log.Info().Int64("request_id", r.ID).Int("step", ordinal).Str("status", string(r.Status)).Msg("step approved")
	return r.Status, nil
}

func (s *Service) approveLegacy(ctx context.Context, r *Request, user *UserProfile, comments string) (Status, error) {
	t, ok := LegacyNext(r.Status)
	if !ok {
		return "", &InvalidStateError{Op: "approve", Status: r.Status}
	}

	now := s.now()
	r.Status = t.Next
	r.CurrentLevel = t.Level
	r.Slot(t.Slot).Set(user.DisplayName, user.Title, now, comments)
	r.UpdatedAt = now

	if err := s.saveAndSync(ctx, *r, "approve request"); err != nil {
		return "", err
	}
	s.log.Info().Int64("request_id", r.ID).Str("status", string(r.Status)).Msg("request approved")
	return r.Status, nil
}

// Reject marks an in-review request REJECTED. The chain is kept so a
// revision can show what had been approved.
func (s *Service) Reject(ctx context.Context, id int64, comments string) error {
	return s.closeOut(ctx, id, StatusRejected, "reject", comments)
}

// Deny terminally refuses an in-review request.
func (s *Service) Deny(ctx context.Context, id int64, comments string) error {
	return s.closeOut(ctx, id, StatusDenied, "deny", comments)
}

func (s *Service) closeOut(ctx context.Context, id int64, to Status, op, comments string) error {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if !r.Status.InReview() {
		return &InvalidStateError{Op: op, Status: r.Status}
	}

	r.Status = to
	// The decision comment lands in the terminal slot regardless of which
	// level acted.
	r.GVP.Comments = comments
	r.UpdatedAt = s.now()
	return s.saveAndSync(ctx, *r, op+" request")
}

// SendBack returns an in-review request to DRAFT with reviewer feedback,
// clearing the approval track and deleting the chain.
func (s *Service) SendBack(ctx context.Context, id int64, comments string) error {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if !r.Status.InReview() {
		return &InvalidStateError{Op: "send back", Status: r.Status}
	}

	r.Status = StatusDraft
	r.CurrentLevel = 0
	r.ClearApprovalTrack()
	r.GVP.Comments = comments
	r.UpdatedAt = s.now()

	if err := s.cache.SaveRequest(ctx, *r); err != nil {
		return err
	}
	if err := s.cache.DeleteSteps(ctx, id); err != nil {
		return err
	}

	row := *r
	s.syncer.Enqueue("send back request", func(ctx context.Context) error {
		if err := s.remote.DeleteSteps(ctx, row.ID); err != nil {
			return err
		}
		return s.remote.UpdateRequest(ctx, row)
	})
	return nil
}

// ReviseInput carries a revision of a rejected request.
type ReviseInput struct {
	Justification   string
	ExpectedOutcome string
	RiskAssessment  string
	Submit          bool
	Comment         string
}

// Revise rewrites the narrative fields of a REJECTED request and either
// parks it as DRAFT or resubmits it with a freshly resolved chain.
func (s *Service) Revise(ctx context.Context, id int64, in ReviseInput) error {
	r, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusRejected {
		return &InvalidStateError{Op: "revise", Status: r.Status}
	}

	user, err := s.identity.Effective(ctx)
	if err != nil {
		return err
	}
	now := s.now()

	r.Justification = in.Justification
	r.ExpectedOutcome = in.ExpectedOutcome
	r.RiskAssessment = in.RiskAssessment
	r.UpdatedAt = now

	var chain []ChainLink
	if in.Submit {
		chain, err = s.resolveChainFor(ctx, r)
		if err != nil {
			return err
		}
		s.applySubmission(r, chain, in.Comment, user.DisplayName, now)
		if len(chain) > 0 {
			if err := s.cache.SetSteps(ctx, id, stepsFromChain(id, chain, now)); err != nil {
				return err
			}
		}
	} else {
		r.Status = StatusDraft
		if in.Comment != "" {
			r.DraftComment = in.Comment
			r.DraftByName = user.DisplayName
			r.DraftAt = &now
		}
	}

	if err := s.cache.SaveRequest(ctx, *r); err != nil {
		return err
	}

	row := *r
	chainCopy := append([]ChainLink(nil), chain...)
	s.syncer.Enqueue("revise request", func(ctx context.Context) error {
		if err := s.remote.UpdateRequest(ctx, row); err != nil {
			return err
		}
		if len(chainCopy) == 0 {
			return nil
		}
		return s.remote.ReplaceSteps(ctx, row.ID, stepsFromChain(row.ID, chainCopy, now))
	})
	return nil
}

// =============================================================================
// CHAIN AND SUBMISSION HELPERS
// =============================================================================

// ResolveApprovalChain exposes chain resolution for previews.
func (s *Service) ResolveApprovalChain(ctx context.Context, employeeID int64, theater string) ([]ChainLink, error) {
	return s.chain.Resolve(ctx, employeeID, theater)
}

func (s *Service) resolveChainFor(ctx context.Context, r *Request) ([]ChainLink, error) {
	eid := r.SubmitterEmployeeID()
	if eid == 0 || r.Theater == "" {
		return nil, nil
	}
	return s.chain.Resolve(ctx, eid, r.Theater)
}

func (s *Service) applySubmission(r *Request, chain []ChainLink, comment, submitterName string, now time.Time) {
	r.Status = StatusSubmitted
	r.CurrentLevel = 1
	r.NextApproverID = nil
	r.NextApproverName = ""
	r.NextApproverTitle = ""
	if len(chain) > 0 {
		eid := chain[0].EmployeeID
		r.NextApproverID = &eid
		r.NextApproverName = chain[0].Name
		r.NextApproverTitle = chain[0].Title
	}
	r.SubmittedComment = comment
	r.SubmittedByName = submitterName
	r.SubmittedAt = &now
	r.UpdatedAt = now
}

// stepsFromChain materializes a resolved chain as step rows. Step ids are
// negative placeholders derived from the request id so they never collide
// with warehouse-assigned ids.
func stepsFromChain(requestID int64, chain []ChainLink, now time.Time) []ApprovalStep {
	base := requestID
	if base < 0 {
		base = -base
	}
	steps := make([]ApprovalStep, 0, len(chain))
	for i, link := range chain {
		steps = append(steps, ApprovalStep{
			ID:                 -(base*100 + int64(i) + 1),
			RequestID:          requestID,
			Ordinal:            i + 1,
			ApproverEmployeeID: link.EmployeeID,
			ApproverName:       link.Name,
			ApproverTitle:      link.Title,
			Status:             StepPending,
			IsFinal:            link.IsFinal,
			CreatedAt:          now,
		})
	}
	return steps
}

func (s *Service) mustGet(ctx context.Context, id int64) (*Request, error) {
	r, err := s.cache.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *Service) saveAndSync(ctx context.Context, r Request, taskName string) error {
	if err := s.cache.SaveRequest(ctx, r); err != nil {
		return err
	}
	s.syncer.Enqueue(taskName, func(ctx context.Context) error {
		return s.remote.UpdateRequest(ctx, r)
	})
	return nil
}

// =============================================================================
// DIRECTORY AND LOOKUP OPERATIONS
// =============================================================================

// AccountSearchResult carries matches plus the total match count.
type AccountSearchResult struct {
	Accounts     []Account
	TotalMatches int
}

// SearchAccounts finds mirrored accounts by name. Queries under two
// characters return nothing rather than scanning the directory.
func (s *Service) SearchAccounts(ctx context.Context, q string) (*AccountSearchResult, error) {
	if len(q) < 2 {
		return &AccountSearchResult{}, nil
	}
	accounts, total, err := s.cache.SearchAccounts(ctx, q, searchResultLimit)
	if err != nil {
		return nil, err
	}
	return &AccountSearchResult{Accounts: accounts, TotalMatches: total}, nil
}

// TheaterIndustries lists the classification dimensions.
type TheaterIndustries struct {
	Theaters            []string
	Industries          []string
	IndustriesByTheater map[string][]string
}

// TheaterIndustryLookup returns the distinct theaters and industry
// segments in the account directory.
func (s *Service) TheaterIndustryLookup(ctx context.Context) (*TheaterIndustries, error) {
	theaters, industries, byTheater, err := s.cache.TheaterIndustryLookup(ctx)
	if err != nil {
		return nil, err
	}
	return &TheaterIndustries{
		Theaters:            theaters,
		Industries:          industries,
		IndustriesByTheater: byTheater,
	}, nil
}

// SearchEmployees is administrator-only and hits the warehouse directly,
// memoizing each query string for employeeSearchTTL.
func (s *Service) SearchEmployees(ctx context.Context, q string) ([]Employee, error) {
	if !s.identity.IsAdmin(ctx) {
		return nil, ErrForbidden
	}
	q = strings.ToLower(strings.TrimSpace(q))
	if len(q) < 2 {
		return nil, nil
	}

	s.empMu.Lock()
	if at, ok := s.empCached[q]; ok && s.now().Sub(at) < employeeSearchTTL {
		hit := s.empCache[q]
		s.empMu.Unlock()
		return hit, nil
	}
	s.empMu.Unlock()

	results, err := s.remote.SearchEmployees(ctx, q, searchResultLimit)
	if err != nil {
		return nil, err
	}

	s.empMu.Lock()
	s.empCache[q] = results
	s.empCached[q] = s.now()
	s.empMu.Unlock()
	return results, nil
}

// Opportunities lists warehouse opportunities for an account.
func (s *Service) Opportunities(ctx context.Context, accountID string) ([]Opportunity, error) {
	return s.remote.Opportunities(ctx, accountID)
}

// LinkedOpportunities returns opportunity ids linked to a request.
func (s *Service) LinkedOpportunities(ctx context.Context, requestID int64) ([]string, error) {
	return s.remote.LinkedOpportunityIDs(ctx, requestID)
}

// LinkOpportunity attaches an opportunity to a request.
func (s *Service) LinkOpportunity(ctx context.Context, requestID int64, opportunityID string) error {
	return s.remote.LinkOpportunity(ctx, requestID, opportunityID)
}

// UnlinkOpportunity detaches an opportunity from a request.
func (s *Service) UnlinkOpportunity(ctx context.Context, requestID int64, opportunityID string) error {
	return s.remote.UnlinkOpportunity(ctx, requestID, opportunityID)
}

// Budgets lists annual budget rows straight from the warehouse.
func (s *Service) Budgets(ctx context.Context, fiscalYear string) ([]Budget, error) {
	return s.remote.FetchBudgets(ctx, fiscalYear)
}
