package stage

import (
	"fmt"
	"os/exec"
	"strings"
)

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// BinaryHealth reports whether every command a stage shells out to resolves on PATH.
func BinaryHealth(name string, commands ...string) Health {
	var missing []string
	for _, cmd := range commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			missing = append(missing, "(unset)")
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			missing = append(missing, cmd)
		}
	}
	if len(missing) > 0 {
		return Unhealthy(name, fmt.Sprintf("missing binaries: %s", strings.Join(missing, ", ")))
	}
	return Healthy(name)
}
