// Package invariant provides a single defensive-assertion helper used
// throughout the timing model to fail loudly, at the point of violation,
// rather than let a corrupted ring index or checkpoint count silently
// produce a wrong simulation result several cycles later.
package invariant

import "fmt"

// Assert panics with a formatted message if cond is false. Call sites
// name the invariant being checked, not the symptom that would follow
// from its violation.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}
