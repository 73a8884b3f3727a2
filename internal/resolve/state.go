package resolve

import "fmt"

// State is a step of a resolution run. Runs visit states strictly in
// declaration order; Failed is reachable from any of them.
type State int

const (
	Init State = iota
	DiscoverManager
	BootstrapToolchain
	DetermineProjectCompilerVersion
	ChooseServerVersion
	InstallProjectToolchain
	Ready
	Failed
)

// Steps lists the working states in execution order.
var Steps = []State{
	DiscoverManager,
	BootstrapToolchain,
	DetermineProjectCompilerVersion,
	ChooseServerVersion,
	InstallProjectToolchain,
}

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case DiscoverManager:
		return "discover manager"
	case BootstrapToolchain:
		return "bootstrap toolchain"
	case DetermineProjectCompilerVersion:
		return "determine project compiler"
	case ChooseServerVersion:
		return "choose server version"
	case InstallProjectToolchain:
		return "install project toolchain"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateError records the state in which a run failed.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }
