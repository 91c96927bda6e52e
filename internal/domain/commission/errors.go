package commission

import "github.com/escrowhub/backend/internal/domain/shared"

// Stable error codes raised by the commission aggregate and its rules.
const (
	CodeSplitTotalMustBeOneHundredPercent = "SplitTotalMustBeOneHundredPercent"
	CodePartiesNotAccepted                = "PartiesNotAccepted"
	CodeInvalidSplit                      = "InvalidSplit"
	CodeInvalidTransition                 = "InvalidTransition"
	CodePartyNotFound                     = "PartyNotFound"
	CodeMilestoneNotFound                 = "MilestoneNotFound"
	CodeAlreadyCompleted                  = "AlreadyCompleted"
	CodeEscrowAlreadyAttached             = "EscrowAlreadyAttached"
	CodeDuplicateParty                    = "DuplicateParty"
	CodeDuplicateMilestone                = "DuplicateMilestone"
	CodeMilestoneTotalExceedsAgreement    = "MilestoneTotalExceedsAgreementValue"
	CodeMilestonesIncomplete              = "MilestonesIncomplete"
	CodeMilestoneNotOverdue               = "MilestoneNotOverdue"
	CodeInvalidAgreement                  = "InvalidAgreement"
)

// LegacyCodeSplitTotal is the split total code older clients were built against
const LegacyCodeSplitTotal = "SplitTotalDeveSerCemPorCento"

var (
	ErrSplitTotalMustBeOneHundredPercent = shared.NewDomainError(CodeSplitTotalMustBeOneHundredPercent, "Party split percentages must add up to exactly 100")
	ErrPartiesNotAccepted                = shared.NewDomainError(CodePartiesNotAccepted, "Every party must accept the agreement before activation")
	ErrInvalidSplit                      = shared.NewDomainError(CodeInvalidSplit, "Split percentages cannot exceed 100 in total")
	ErrInvalidTransition                 = shared.NewDomainError(CodeInvalidTransition, "Agreement cannot move to the requested status")
	ErrPartyNotFound                     = shared.NewDomainError(CodePartyNotFound, "Party not found in agreement")
	ErrMilestoneNotFound                 = shared.NewDomainError(CodeMilestoneNotFound, "Milestone not found in agreement")
	ErrAlreadyCompleted                  = shared.NewDomainError(CodeAlreadyCompleted, "Milestone is already completed")
	ErrEscrowAlreadyAttached             = shared.NewDomainError(CodeEscrowAlreadyAttached, "Agreement already has an escrow account")
	ErrDuplicateParty                    = shared.NewDomainError(CodeDuplicateParty, "Party already belongs to the agreement")
	ErrDuplicateMilestone                = shared.NewDomainError(CodeDuplicateMilestone, "Milestone already exists in the agreement")
	ErrMilestoneTotalExceedsAgreement    = shared.NewDomainError(CodeMilestoneTotalExceedsAgreement, "Milestone values cannot exceed the agreement total value")
	ErrMilestonesIncomplete              = shared.NewDomainError(CodeMilestonesIncomplete, "All milestones must be completed first")
	ErrMilestoneNotOverdue               = shared.NewDomainError(CodeMilestoneNotOverdue, "Milestone is not past its due date")
	ErrInvalidAgreement                  = shared.NewDomainError(CodeInvalidAgreement, "Agreement data is invalid")
)
