package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"stepwise/internal/llm"
	"stepwise/internal/tool"
)

// stallDetector counts consecutive cycles that request the same actions
// and observe the same results.
type stallDetector struct {
	window  int
	last    string
	repeats int
}

func newStallDetector(window int) *stallDetector {
	return &stallDetector{window: window}
}

// Observe records one completed cycle and reports whether the run has
// stalled. A disabled detector never reports a stall.
func (d *stallDetector) Observe(calls []*llm.ToolCall, results []*tool.CallResult) bool {
	if d.window <= 0 {
		return false
	}

	sig := cycleSignature(calls, results)
	if sig == d.last {
		d.repeats++
	} else {
		d.last = sig
		d.repeats = 1
	}
	return d.repeats >= d.window
}

func (d *stallDetector) Repeats() int {
	return d.repeats
}

// cycleSignature combines the sorted action signatures of a cycle with a
// digest of what those actions observed. Call IDs are ignored.
func cycleSignature(calls []*llm.ToolCall, results []*tool.CallResult) string {
	actions := make([]string, len(calls))
	for i, tc := range calls {
		actions[i] = actionSignature(tc.Name(), tc.Arguments())
	}
	sort.Strings(actions)

	observations := make([]string, 0, len(results))
	for _, r := range results {
		if r.Result == nil {
			continue
		}
		observations = append(observations, fmt.Sprintf("%s|%t|%s|%s",
			r.ToolName, r.Result.Success, r.Result.Output, r.Result.Error))
	}
	sort.Strings(observations)

	h := sha256.New()
	for _, o := range observations {
		h.Write([]byte(o))
		h.Write([]byte{0})
	}

	return strings.Join(actions, ",") + "#" + hex.EncodeToString(h.Sum(nil)[:8])
}

// actionSignature is name plus a hash of the canonical JSON arguments, so
// key order and whitespace do not matter.
func actionSignature(name, arguments string) string {
	canonical := []byte(arguments)
	var v any
	if err := json.Unmarshal(canonical, &v); err == nil {
		if b, err := json.Marshal(v); err == nil {
			canonical = b
		}
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%s:%x", name, sum[:8])
}
