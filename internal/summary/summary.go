// Package summary turns parsed aggregate reports into the canonical
// human-readable summary text. The output is deterministic: the same parsed
// input always renders to byte-identical text.
package summary

import (
	"fmt"
	"strings"
	"time"

	"github.com/firefart/dmarcsummary/internal/dmarc"
)

// Entry is one XML payload of a run, either parsed or failed. Failed entries
// render as a skipped block instead of aborting the whole run.
type Entry struct {
	Name   string
	Report *dmarc.AggregateReport
	Err    error
}

const timeFormat = "2006-01-02 15:04:05"

var separator = strings.Repeat("=", 60)

// Summarize renders all entries in order into one text artifact and returns
// it together with the number of successfully summarized reports.
func Summarize(entries []Entry) (string, int) {
	var lines []string
	summarized := 0

	for i, e := range entries {
		if i > 0 {
			lines = append(lines, "", separator, "")
		}
		if e.Err != nil {
			lines = append(lines, fmt.Sprintf("⚠️ Skipped %s: %v", e.Name, e.Err))
			continue
		}
		lines = append(lines, renderReport(e.Report)...)
		summarized++
	}

	return strings.Join(lines, "\n") + "\n", summarized
}

func renderReport(r *dmarc.AggregateReport) []string {
	lines := []string{
		fmt.Sprintf("DMARC Report from %s", r.Metadata.OrgName),
		fmt.Sprintf("Domain: %s", r.Policy.Domain),
		fmt.Sprintf("Policy: p=%s, sp=%s, pct=%d", r.Policy.P, r.Policy.SP, r.Policy.Pct),
		fmt.Sprintf("Period: %s - %s", formatTime(r.Metadata.Begin), formatTime(r.Metadata.End)),
	}

	var passed, failed int
	for _, rec := range r.Records {
		lines = append(lines, "")
		lines = append(lines, renderRecord(rec, r.Metadata.OrgName, r.Policy.Domain)...)
		if rec.Passed() {
			passed += rec.Count
		} else {
			failed += rec.Count
		}
	}

	lines = append(lines, "", fmt.Sprintf("Summary: %d passed, %d failed, %d messages total", passed, failed, passed+failed))
	return lines
}

func renderRecord(rec dmarc.Record, orgName, domain string) []string {
	label := "❌ Failure"
	if rec.Passed() {
		label = "✅ Successful Delivery"
	}

	lines := []string{
		fmt.Sprintf("%s: %s from %s", label, countPhrase(rec.Count), rec.SourceIP),
		fmt.Sprintf("   SPF: %s  DKIM: %s", glyph(rec.SPF.Passed()), glyph(rec.DKIM.Passed())),
	}

	for _, d := range rec.SPF.Details {
		lines = append(lines, fmt.Sprintf("   SPF check: domain=%s, result=%s", d.Domain, d.Result))
	}
	for _, d := range rec.DKIM.Details {
		if d.Selector != "" {
			lines = append(lines, fmt.Sprintf("   DKIM check: domain=%s, selector=%s, result=%s", d.Domain, d.Selector, d.Result))
		} else {
			lines = append(lines, fmt.Sprintf("   DKIM check: domain=%s, result=%s", d.Domain, d.Result))
		}
	}

	lines = append(lines,
		"   "+statusLine(rec),
		fmt.Sprintf("   %s reported that the %s policy %s %s.", orgName, domain, dispositionVerb(rec.Disposition), messagePhrase(rec.Count)),
	)
	return lines
}

func statusLine(rec dmarc.Record) string {
	switch rec.Disposition {
	case dmarc.DispositionNone:
		if rec.Passed() {
			return "✅ No delivery issues"
		}
		return "⚠️ Delivered despite failed authentication"
	case dmarc.DispositionQuarantine, dmarc.DispositionReject:
		return "🚫 Blocked or sent to spam"
	default:
		return fmt.Sprintf("⚠️ Disposition: %s", rec.Disposition)
	}
}

func dispositionVerb(disposition string) string {
	switch disposition {
	case dmarc.DispositionNone:
		return "accepted"
	case dmarc.DispositionQuarantine:
		return "quarantined"
	case dmarc.DispositionReject:
		return "rejected"
	default:
		return fmt.Sprintf("applied '%s' to", disposition)
	}
}

func glyph(passed bool) string {
	if passed {
		return "✅"
	}
	return "❌"
}

func countPhrase(count int) string {
	if count == 1 {
		return "One (1) email"
	}
	return fmt.Sprintf("%d emails", count)
}

func messagePhrase(count int) string {
	if count == 1 {
		return "this message"
	}
	return "these messages"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat) + " UTC"
}
