package presenter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalPresent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	text := "DMARC Report from google.com\nSummary: 1 passed, 0 failed, 1 messages total\n"
	require.NoError(t, Terminal{W: &buf}.Present(text))
	// the terminal sink must not modify the text in any way
	assert.Equal(t, text, buf.String())
}

func TestDialogScript(t *testing.T) {
	t.Parallel()

	script := dialogScript(`a "quoted" \ backslash`)
	assert.Equal(t, `display dialog "a \"quoted\" \\ backslash" buttons {"OK"} default button "OK"`, script)
}

func TestDialogScriptPlain(t *testing.T) {
	t.Parallel()

	script := dialogScript("no special characters")
	assert.Contains(t, script, `"no special characters"`)
	assert.Contains(t, script, `buttons {"OK"}`)
}
