package format

import (
	"fmt"
	"strings"
	"time"

	"ncjourney/internal/workflow"
)

// Summary renders one row per attempted step plus a total footer. When the
// run failed, the failing step is followed by its cause and diagnostic
// snapshot.
func Summary(res *workflow.Result, m Mode) string {
	if res == nil {
		return ""
	}
	t := NewTable(m)
	t.Header("#", "Step", "Took", "OK")
	t.AlignRight(1, 3)
	var total time.Duration
	for i, st := range res.Timings {
		total += st.Took
		t.Row(i+1, st.Name, Millis(st.Took), Mark(st.OK))
	}
	t.Footer("", fmt.Sprintf("%s / %s", res.Workflow, res.Engine), Millis(total), Mark(res.OK()))

	var b strings.Builder
	b.WriteString(t.String())
	b.WriteByte('\n')
	if f := res.Failure; f != nil {
		fmt.Fprintf(&b, "failed at %s: %v\n", f.StepName, f.Cause)
		snap := f.Snapshot
		if snap.Incomplete {
			fmt.Fprintf(&b, "snapshot incomplete: %s\n", snap.Reason)
		} else {
			fmt.Fprintf(&b, "page: %s (%s)\n", snap.URL, Truncate(snap.Title, 60))
		}
		if snap.DumpPath != "" {
			fmt.Fprintf(&b, "page dump: %s\n", snap.DumpPath)
		}
	}
	return b.String()
}
