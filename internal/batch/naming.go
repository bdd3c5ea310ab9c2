package batch

import (
	"fmt"
	"strings"

	"stemsplit/internal/textutil"
	"stemsplit/internal/workunit"
)

// nameResolver hands out output names, suffixing "_2", "_3", ... on
// collisions. Names compare case-insensitively so outputs stay distinct on
// case-folding filesystems.
type nameResolver struct {
	taken map[string]struct{}
}

func newNameResolver() *nameResolver {
	return &nameResolver{taken: make(map[string]struct{})}
}

func (n *nameResolver) resolve(raw string) string {
	base := textutil.OutputName(raw)
	candidate := base
	for i := 2; ; i++ {
		key := strings.ToLower(candidate)
		if _, exists := n.taken[key]; !exists {
			n.taken[key] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}

// AssignNames returns items with unique, filesystem-safe names, keeping order.
func AssignNames(items []workunit.InputItem) []workunit.InputItem {
	resolver := newNameResolver()
	out := make([]workunit.InputItem, len(items))
	for i, item := range items {
		item.Name = resolver.resolve(item.Name)
		out[i] = item
	}
	return out
}
