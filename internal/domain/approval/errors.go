package approval

import (
	"fmt"

	"github.com/erp/docflow/internal/domain/shared"
)

// Approval errors, matched with errors.Is by code
var (
	ErrAlreadyApproved       = shared.NewDomainError("ALREADY_APPROVED", "Document is already approved")
	ErrDuplicateVote         = shared.NewDomainError("DUPLICATE_VOTE", "Approver has already voted on this request")
	ErrNoActiveRequest       = shared.NewDomainError("NO_ACTIVE_REQUEST", "Document has no active approval request")
	ErrApproverNotAuthorized = shared.NewDomainError("APPROVER_NOT_AUTHORIZED", "Approver does not hold a required role")
	ErrInvalidVoteAction     = shared.NewDomainError("INVALID_VOTE_ACTION", "Vote action must be approve or reject")
	ErrInvalidRule           = shared.NewDomainError("INVALID_RULE", "Approval rule is invalid")
	ErrInvalidOperator       = shared.NewDomainError("INVALID_OPERATOR", "Unsupported condition operator")
	ErrRuleNotFound          = shared.NewDomainError("RULE_NOT_FOUND", "Approval rule not found")
	ErrApprovalNotRequired   = shared.NewDomainError("APPROVAL_NOT_REQUIRED", "Documents of this domain are approved without an approval request")
)

// NewInvalidOperator reports an operator outside the supported set
func NewInvalidOperator(op string) *shared.DomainError {
	return shared.NewDomainError(ErrInvalidOperator.Code,
		fmt.Sprintf("unsupported operator %q, expected one of gt, gte, lt, lte, eq, in", op))
}

// NewInvalidRule reports a rule that failed validation
func NewInvalidRule(format string, args ...any) *shared.DomainError {
	return shared.NewDomainError(ErrInvalidRule.Code, fmt.Sprintf(format, args...))
}
