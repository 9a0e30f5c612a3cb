package dmarc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// some reports contain invalid XML by adding an unclosed xs tag
const xsTag = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="http://dmarc.org/dmarc-xml/0.1">`

// ParseError is returned for any document that can not be turned into a
// complete AggregateReport. The whole document is rejected, there are no
// partial reports.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse parses one DMARC aggregate report XML document into an
// AggregateReport. Malformed XML, missing required fields or an invalid
// count all fail with a *ParseError.
func Parse(data []byte) (*AggregateReport, error) {
	data = bytes.ReplaceAll(data, []byte(xsTag), []byte(""))

	var doc xmlReport
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: "could not unmarshal xml", Err: err}
	}

	if doc.ReportMetadata.DateRange.Begin == 0 || doc.ReportMetadata.DateRange.End == 0 {
		return nil, &ParseError{Reason: "report_metadata is missing the date_range"}
	}

	pct := 100
	if doc.PolicyPublished.Pct != nil {
		pct = *doc.PolicyPublished.Pct
	}

	report := AggregateReport{
		Metadata: ReportMetadata{
			OrgName:  doc.ReportMetadata.OrgName,
			Email:    doc.ReportMetadata.Email,
			ReportID: doc.ReportMetadata.ReportID,
			Begin:    time.Unix(doc.ReportMetadata.DateRange.Begin, 0).UTC(),
			End:      time.Unix(doc.ReportMetadata.DateRange.End, 0).UTC(),
			Errors:   doc.ReportMetadata.Error,
		},
		Policy: PolicyPublished{
			Domain: doc.PolicyPublished.Domain,
			P:      doc.PolicyPublished.P,
			SP:     doc.PolicyPublished.Sp,
			Pct:    pct,
		},
	}

	for _, rec := range doc.Records {
		var dkim, spf AuthOutcome
		for _, d := range rec.AuthResults.Dkim {
			dkim.Details = append(dkim.Details, AuthDetail{
				Domain:   d.Domain,
				Selector: d.Selector,
				Result:   d.Result,
			})
		}
		for _, s := range rec.AuthResults.Spf {
			spf.Details = append(spf.Details, AuthDetail{
				Domain: s.Domain,
				Result: s.Result,
			})
		}
		dkim.Result = reduce(dkim.Details)
		spf.Result = reduce(spf.Details)

		report.Records = append(report.Records, Record{
			SourceIP:    rec.Row.SourceIP,
			Count:       rec.Row.Count,
			Disposition: rec.Row.PolicyEvaluated.Disposition,
			DKIM:        dkim,
			SPF:         spf,
		})
	}

	if err := validate.Struct(report); err != nil {
		return nil, &ParseError{Reason: "report is missing required fields", Err: err}
	}

	return &report, nil
}

// reduce implements the "any mechanism passing" rule: a record level result
// is a pass if any sub-result is exactly "pass", everything else is a fail.
func reduce(details []AuthDetail) string {
	for _, d := range details {
		if d.Result == ResultPass {
			return ResultPass
		}
	}
	return ResultFail
}
