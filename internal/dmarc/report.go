package dmarc

import "time"

// result tags defined by RFC 7489. Anything else coming in over the wire is
// kept verbatim but never counts as a pass.
const (
	ResultPass = "pass"
	ResultFail = "fail"

	DispositionNone       = "none"
	DispositionQuarantine = "quarantine"
	DispositionReject     = "reject"
)

// AggregateReport is one fully parsed DMARC aggregate report. It is built by
// Parse and never mutated afterwards.
type AggregateReport struct {
	Metadata ReportMetadata  `validate:"required"`
	Policy   PolicyPublished `validate:"required"`
	Records  []Record        `validate:"dive"`
}

// ReportMetadata holds the report_metadata block.
type ReportMetadata struct {
	OrgName  string `validate:"required"`
	Email    string
	ReportID string    `validate:"required"`
	Begin    time.Time `validate:"required"`
	End      time.Time `validate:"required"`
	Errors   []string
}

// PolicyPublished holds the policy_published block. Pct defaults to 100 when
// the element is absent from the report.
type PolicyPublished struct {
	Domain string `validate:"required"`
	P      string `validate:"required"`
	SP     string
	Pct    int `validate:"min=0,max=100"`
}

// Record is one row of the report. Count is the number of messages the row
// represents, never the number of rows.
type Record struct {
	SourceIP    string `validate:"required"`
	Count       int    `validate:"min=1"`
	Disposition string
	DKIM        AuthOutcome
	SPF         AuthOutcome
}

// AuthOutcome is the reduced result of one authentication mechanism for a
// record. Result is always "pass" or "fail"; the raw sub-results with their
// literal tags live in Details.
type AuthOutcome struct {
	Result  string
	Details []AuthDetail
}

// AuthDetail is one raw dkim or spf auth_results element.
type AuthDetail struct {
	Domain   string
	Selector string
	Result   string
}

// Passed reports whether the mechanism passed for this record.
func (o AuthOutcome) Passed() bool {
	return o.Result == ResultPass
}

// Passed reports whether the record counts as a successful delivery. Both
// mechanisms have to pass; this is stricter than DMARC alignment (where one
// aligned mechanism is enough) but it is the behaviour this tool has always
// shipped and the output contract depends on it.
func (r Record) Passed() bool {
	return r.DKIM.Passed() && r.SPF.Passed()
}
