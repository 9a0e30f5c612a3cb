package archive

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dummyXML = `<?xml version="1.0"?><feedback></feedback>`

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	// fixed entry order so the tests are deterministic
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func buildGZ(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestExtractZip(t *testing.T) {
	t.Parallel()

	content := buildZip(t, map[string]string{
		"a.xml":      dummyXML,
		"b.XML":      dummyXML,
		"readme.txt": "not a report",
	})
	path := writeFile(t, "report.zip", content)

	payloads, err := Extract(path)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "a.xml", payloads[0].Name)
	assert.Equal(t, "b.XML", payloads[1].Name)
	assert.Equal(t, dummyXML, string(payloads[0].Data))
}

func TestExtractZipNoXML(t *testing.T) {
	t.Parallel()

	content := buildZip(t, map[string]string{"readme.txt": "nope"})
	path := writeFile(t, "report.zip", content)

	_, err := Extract(path)
	require.Error(t, err)
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Contains(t, extractionErr.Reason, "no xml files")
}

func TestExtractGZ(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.xml.gz", buildGZ(t, dummyXML))

	payloads, err := Extract(path)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "report.xml", payloads[0].Name)
	assert.Equal(t, dummyXML, string(payloads[0].Data))
}

func TestExtractCorruptGZ(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.gz", []byte("this is not gzip"))

	_, err := Extract(path)
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
}

func TestExtractXMLPassthrough(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.xml", []byte(dummyXML))

	payloads, err := Extract(path)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, dummyXML, string(payloads[0].Data))
}

// the same bytes fed directly and as the only zip entry must extract to the
// identical payload
func TestExtractXMLZipRoundTrip(t *testing.T) {
	t.Parallel()

	direct, err := Extract(writeFile(t, "report.xml", []byte(dummyXML)))
	require.NoError(t, err)

	zipped := buildZip(t, map[string]string{"report.xml": dummyXML})
	viaZip, err := Extract(writeFile(t, "report.zip", zipped))
	require.NoError(t, err)

	require.Len(t, direct, 1)
	require.Len(t, viaZip, 1)
	assert.Equal(t, direct[0].Name, viaZip[0].Name)
	assert.Equal(t, direct[0].Data, viaZip[0].Data)
}

func TestExtractUnknownExtension(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.txt", []byte(dummyXML))

	_, err := Extract(path)
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Contains(t, extractionErr.Reason, "unknown extension")
}

func TestExtractMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Extract(filepath.Join(t.TempDir(), "does_not_exist.xml"))
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
}

func buildEML(t *testing.T, attachmentName string, attachment []byte) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString("From: noreply-dmarc-support@google.com\r\n")
	b.WriteString("To: postmaster@example.com\r\n")
	b.WriteString("Subject: Report domain: example.com\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"b1\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("--b1\r\n")
	b.WriteString("Content-Type: text/plain\r\n")
	b.WriteString("\r\n")
	b.WriteString("report attached\r\n")
	b.WriteString("--b1\r\n")
	b.WriteString("Content-Type: application/zip\r\n")
	b.WriteString("Content-Disposition: attachment; filename=\"" + attachmentName + "\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString(attachment))
	b.WriteString("\r\n--b1--\r\n")
	return []byte(b.String())
}

func TestExtractEML(t *testing.T) {
	t.Parallel()

	zipped := buildZip(t, map[string]string{"report.xml": dummyXML})
	path := writeFile(t, "report.eml", buildEML(t, "report.zip", zipped))

	payloads, err := Extract(path)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "report.xml", payloads[0].Name)
	assert.Equal(t, dummyXML, string(payloads[0].Data))
}

func TestExtractEMLNoReport(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.eml", buildEML(t, "notes.txt", []byte("hi")))

	_, err := Extract(path)
	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Contains(t, extractionErr.Reason, "no report attachments")
}

func TestIsSupportedArchive(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSupportedArchive([]byte{31, 139, 8, 0}))
	assert.True(t, IsSupportedArchive([]byte{80, 75, 3, 4, 0, 0}))
	assert.False(t, IsSupportedArchive([]byte(dummyXML)))
	assert.False(t, IsSupportedArchive(nil))
}
