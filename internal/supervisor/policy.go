package supervisor

import (
	"fmt"
	"strings"
)

// Policy decides whether an exited process is relaunched.
type Policy int

const (
	// Never leaves an exited process exited.
	Never Policy = iota
	// Always relaunches after every exit.
	Always
	// OnFailure relaunches after every exit as well. The name is kept for
	// configuration compatibility; clean exits are relaunched too.
	OnFailure
)

func (p Policy) String() string {
	switch p {
	case Never:
		return "never"
	case Always:
		return "always"
	case OnFailure:
		return "on-failure"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Relaunches reports whether the policy replaces an exited process.
func (p Policy) Relaunches() bool {
	return p == Always || p == OnFailure
}

// ParsePolicy accepts never (or no), always and on-failure in any case.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "no":
		return Never, nil
	case "always":
		return Always, nil
	case "on-failure", "onfailure", "on_failure":
		return OnFailure, nil
	default:
		return Never, fmt.Errorf("unknown restart policy %q", s)
	}
}
