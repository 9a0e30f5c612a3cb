package archive

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/mail"

	// needed to handle other charsets too
	_ "github.com/emersion/go-message/charset"
)

// extractEML handles a saved email file.
func extractEML(name string, content []byte) ([]Payload, error) {
	return ExtractMail(name, bytes.NewReader(content))
}

// ExtractMail pulls report payloads out of an email by walking its MIME
// parts. Attachments with a supported extension are extracted, everything
// else is skipped. Some providers inline the archive instead of attaching
// it, those parts are recognized by their magic bytes. An email without a
// single report payload is an *ExtractionError.
func ExtractMail(name string, r io.Reader) ([]Payload, error) {
	m, err := mail.CreateReader(r)
	if err != nil {
		return nil, &ExtractionError{Name: name, Reason: "could not read mail", Err: err}
	}
	defer m.Close()

	var payloads []Payload
	for {
		p, err := m.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, &ExtractionError{Name: name, Reason: "could not get next mail part", Err: err}
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, &ExtractionError{Name: name, Reason: "could not read inline part", Err: err}
			}
			if !IsSupportedArchive(b) {
				continue
			}
			contentDisp, contentDispParams, err := h.ContentDisposition()
			if err != nil || contentDisp != "inline" {
				continue
			}
			filename, ok := contentDispParams["filename"]
			if !ok {
				continue
			}
			inner, err := ExtractBytes(filename, b)
			if err != nil {
				return nil, err
			}
			payloads = append(payloads, inner...)
		case *mail.AttachmentHeader:
			filename, err := h.Filename()
			if err != nil {
				return nil, &ExtractionError{Name: name, Reason: "could not get attachment filename", Err: err}
			}
			switch strings.ToLower(filepath.Ext(filename)) {
			case ".xml", ".gz", ".zip":
			default:
				continue
			}
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return nil, &ExtractionError{Name: name, Reason: "could not read attachment", Err: err}
			}
			inner, err := ExtractBytes(filename, b)
			if err != nil {
				return nil, err
			}
			payloads = append(payloads, inner...)
		}
	}

	if len(payloads) == 0 {
		return nil, &ExtractionError{Name: name, Reason: "no report attachments found in mail"}
	}
	return payloads, nil
}
