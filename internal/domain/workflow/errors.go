package workflow

import (
	"fmt"

	"github.com/erp/docflow/internal/domain/shared"
)

// Workflow errors. Compare with errors.Is; instances returned by the
// constructors below match these sentinels by code.
var (
	ErrInvalidTransition = shared.NewDomainError("INVALID_TRANSITION", "Action is not allowed from the current state")
	ErrGuardViolation    = shared.NewDomainError("GUARD_VIOLATION", "Document failed a business guard")
	ErrUnknownDomain     = shared.NewDomainError("UNKNOWN_DOMAIN", "Document domain is not registered")
	ErrDocumentBusy      = shared.NewDomainError("DOCUMENT_BUSY", "Document is being modified by another request")
	ErrStateConflict     = shared.NewDomainError("STATE_CONFLICT", "Document state changed concurrently")
)

// NewInvalidTransition reports that action has no edge from state
func NewInvalidTransition(from State, action Action) *shared.DomainError {
	return shared.NewDomainError(ErrInvalidTransition.Code,
		fmt.Sprintf("cannot %s a document in state %s", action, from))
}

// NewGuardViolation reports the failing guard by name
func NewGuardViolation(guard, detail string) *shared.DomainError {
	return shared.NewDomainError(ErrGuardViolation.Code,
		fmt.Sprintf("guard %s failed: %s", guard, detail)).WithReason(guard)
}

// NewUnknownDomain reports an unregistered domain
func NewUnknownDomain(domain string) *shared.DomainError {
	return shared.NewDomainError(ErrUnknownDomain.Code,
		fmt.Sprintf("document domain %q is not registered", domain))
}

// NewStateConflict reports that ref is no longer in the expected state
func NewStateConflict(ref DocumentRef, expected State) *shared.DomainError {
	return shared.NewDomainError(ErrStateConflict.Code,
		fmt.Sprintf("document %s is no longer in state %s", ref.Key(), expected))
}
