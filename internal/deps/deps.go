package deps

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external command a stage shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the lookup result for one Requirement. Path holds the resolved
// executable when Available is set.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// Blocking reports whether the status should stop a run.
func (s Status) Blocking() bool {
	return !s.Available && !s.Optional
}

// CheckBinaries resolves every requirement against PATH in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(req))
	}
	return results
}

func check(req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	switch {
	case err == nil:
		status.Available = true
		status.Path = path
	case errors.Is(err, exec.ErrNotFound):
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
	default:
		status.Detail = fmt.Sprintf("binary %q unusable: %v", status.Command, err)
	}
	return status
}
