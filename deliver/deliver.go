// Package deliver renders digests and answers to stdout and optionally
// to email. Stdout is the primary interface; email exists for cron runs.
package deliver

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/happycoding7/signal-extract/internal/store"
	"github.com/happycoding7/signal-extract/internal/synth"
)

var separator = strings.Repeat("-", 60)

var digestHeaders = map[string]string{
	store.DigestDaily:       "DAILY ENTERPRISE OPPORTUNITY SCAN",
	store.DigestWeekly:      "WEEKLY ENTERPRISE DEV-TOOL SYNTHESIS",
	store.DigestOpportunity: "ENTERPRISE OPPORTUNITY REPORT",
}

// WriteDigest renders one digest to w.
func WriteDigest(w io.Writer, d *store.Digest) {
	header, ok := digestHeaders[d.Kind]
	if !ok {
		header = strings.ToUpper(d.Kind)
	}
	generated := time.UnixMilli(d.GeneratedAt).UTC()
	if d.GeneratedAt == 0 {
		generated = time.Now().UTC()
	}
	fmt.Fprintf(w, "\n%s\n", separator)
	fmt.Fprintf(w, "  %s\n", header)
	fmt.Fprintf(w, "  %s\n", generated.Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(w, "  (%d items analyzed)\n", d.ItemCount)
	fmt.Fprintf(w, "%s\n\n%s\n\n%s\n", separator, d.Content, separator)
}

// WriteAnswer renders a Q&A result to w.
func WriteAnswer(w io.Writer, r *synth.QAResult) {
	fmt.Fprintf(w, "\n%s\n", separator)
	fmt.Fprintln(w, "  Q&A")
	fmt.Fprintf(w, "%s\n", separator)
	fmt.Fprintf(w, "  Q: %s\n", r.Question)
	fmt.Fprintf(w, "  (%d sources searched)\n", r.SourcesUsed)
	fmt.Fprintf(w, "%s\n\n%s\n\n%s\n", separator, r.Answer, separator)
}
