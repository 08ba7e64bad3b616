package topup

// Outcome is the classified result of one purchase attempt. The only
// implementations are Success, KnownFailure and UnknownFailure.
type Outcome interface {
	Kind() OutcomeKind
	sealed()
}

// OutcomeKind names an Outcome variant for logs and span attributes.
type OutcomeKind string

const (
	KindSuccess        OutcomeKind = "success"
	KindKnownFailure   OutcomeKind = "known_failure"
	KindUnknownFailure OutcomeKind = "unknown_failure"
)

// FailureClass separates the causes that collapse into UnknownFailure.
// ClassNoMarker means the storefront answered but showed neither marker;
// ClassContractViolation means an expected control never appeared.
type FailureClass string

const (
	ClassNoMarker          FailureClass = "no_marker"
	ClassContractViolation FailureClass = "contract_violation"
	ClassAutomationFault   FailureClass = "automation_fault"
	ClassResource          FailureClass = "resource"
	ClassInvalidRequest    FailureClass = "invalid_request"
)

// Success carries the full-page screenshot taken on the success marker.
type Success struct {
	Proof []byte
}

// KnownFailure carries the storefront's own error text.
type KnownFailure struct {
	Reason string
}

// UnknownFailure covers every attempt without a definitive marker.
type UnknownFailure struct {
	Class FailureClass
	Step  string
	Cause string
}

func (Success) Kind() OutcomeKind        { return KindSuccess }
func (KnownFailure) Kind() OutcomeKind   { return KindKnownFailure }
func (UnknownFailure) Kind() OutcomeKind { return KindUnknownFailure }

func (Success) sealed()        {}
func (KnownFailure) sealed()   {}
func (UnknownFailure) sealed() {}
