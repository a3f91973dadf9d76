package datastore

// State is a position in the bootstrap state machine governing the
// configure sequence.
type State string

const (
	// StateNotConfigured is the initial state before Configure runs.
	StateNotConfigured State = "not_configured"

	// StateValidatingConfig is active while options are validated.
	StateValidatingConfig State = "validating_config"

	// StateModeResolved is reached once the operating mode is derived.
	StateModeResolved State = "mode_resolved"

	// StateCheckingEngine is active during the backend compatibility gate.
	StateCheckingEngine State = "checking_engine"

	// StateAuditingPrivileges is active while privilege checks run.
	StateAuditingPrivileges State = "auditing_privileges"

	// StateBootstrapping is active while schema objects are provisioned.
	StateBootstrapping State = "bootstrapping"

	// StateDecorating is active while the read action is wrapped.
	StateDecorating State = "decorating"

	// StateConfigured is the terminal success state.
	StateConfigured State = "configured"

	// StateDisabled is the terminal state for unsupported backends: the
	// datastore stays off with a warning rather than failing startup.
	StateDisabled State = "disabled"

	// StateFailed is the terminal failure state; startup must abort.
	StateFailed State = "failed"
)

// Terminal reports whether the state machine has finished.
func (s State) Terminal() bool {
	return s == StateConfigured || s == StateDisabled || s == StateFailed
}
