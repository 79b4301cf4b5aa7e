/*
status.go - Request status enumeration and the legacy approval transition table

PURPOSE:
  Defines the closed set of request statuses and the fixed four-level
  transition table used by requests that predate dynamic approval chains.
  Status and approval level always move together; the table is the only
  place that pairing is encoded.

TWO APPROVAL MODELS:
  1. Dynamic chain: an ordered list of ApprovalStep rows resolved from the
     reporting hierarchy. Used whenever a request has at least one step.
  2. Legacy fixed levels: SUBMITTED -> DM -> RD -> AVP -> FINAL, one slot
     per level. Kept for requests created before chains existed, and as a
     read-compatibility projection for steps 1-4 of a dynamic chain.

SEE ALSO:
  - service.go: Approve() dispatches between the two models
  - types.go: ApprovalFact, the per-level slot
*/
package governance

// Status is a request's position in the approval lifecycle.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSubmitted     Status = "SUBMITTED"
	StatusDMApproved    Status = "DM_APPROVED"
	StatusRDApproved    Status = "RD_APPROVED"
	StatusAVPApproved   Status = "AVP_APPROVED"
	StatusFinalApproved Status = "FINAL_APPROVED"
	StatusRejected      Status = "REJECTED"
	StatusDenied        Status = "DENIED"
)

// StepStatus is an approval step's state. Steps only ever move
// PENDING -> APPROVED; rejection deletes the whole chain instead.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
)

// =============================================================================
// LEGACY TRANSITION TABLE
// =============================================================================

// LegacySlot identifies one of the four fixed approval fact slots.
type LegacySlot int

const (
	SlotNone LegacySlot = iota
	SlotDM              // district manager, level 1
	SlotRD              // regional director, level 2
	SlotAVP             // area VP, level 3
	SlotGVP             // group VP, level 4
)

// legacyTransition is one forward edge in the fixed approval sequence.
type legacyTransition struct {
	Next  Status
	Level int        // current_approval_level after the action
	Slot  LegacySlot // which fact slot records the approval
}

// legacyTransitions maps the status being approved to its successor.
// Statuses absent from the table cannot be approved under the legacy model.
var legacyTransitions = map[Status]legacyTransition{
	StatusSubmitted:   {Next: StatusDMApproved, Level: 2, Slot: SlotDM},
	StatusDMApproved:  {Next: StatusRDApproved, Level: 3, Slot: SlotRD},
	StatusRDApproved:  {Next: StatusAVPApproved, Level: 4, Slot: SlotAVP},
	StatusAVPApproved: {Next: StatusFinalApproved, Level: 5, Slot: SlotGVP},
}

// LegacyNext returns the transition for approving a request currently in s.
// ok is false when s has no legacy forward edge.
func LegacyNext(s Status) (legacyTransition, bool) {
	t, ok := legacyTransitions[s]
	return t, ok
}

// SlotForStep maps a dynamic chain ordinal (1-based) to the legacy slot it
// mirrors into. Ordinals past 4 have no legacy projection.
func SlotForStep(ordinal int) LegacySlot {
	switch ordinal {
	case 1:
		return SlotDM
	case 2:
		return SlotRD
	case 3:
		return SlotAVP
	case 4:
		return SlotGVP
	default:
		return SlotNone
	}
}

// InReview reports whether a request is awaiting some approver's action.
// Exactly these statuses may be approved, rejected, denied, sent back,
// or withdrawn.
func (s Status) InReview() bool {
	switch s {
	case StatusSubmitted, StatusDMApproved, StatusRDApproved, StatusAVPApproved:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further approval action applies.
func (s Status) Terminal() bool {
	return s == StatusFinalApproved || s == StatusDenied
}
