package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const (
	userLine      = `{"type":"user","message":{"role":"user","content":"hello"},"gitBranch":"main","version":"2.0.1"}`
	assistantLine = `{"type":"assistant","message":{"role":"assistant","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":80,"cache_read_input_tokens":20,"output_tokens":40}}}`
)

func TestScanAccumulates(t *testing.T) {
	path := writeTranscript(t,
		userLine,
		assistantLine,
		userLine,
	)

	stats, err := Scan(path)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Turns)
	assert.Equal(t, 100, stats.TokensIn, "cache-read tokens count as input credit")
	assert.Equal(t, 40, stats.TokensOut)
	assert.Equal(t, "claude-sonnet-4-20250514", stats.Model)
	assert.Equal(t, "main", stats.Branch)
	assert.Equal(t, "2.0.1", stats.Version)
}

func TestScanSkipsMalformedLines(t *testing.T) {
	path := writeTranscript(t,
		assistantLine,
		"this is not json {{{",
	)

	stats, err := Scan(path)
	require.NoError(t, err)

	assert.Equal(t, 100, stats.TokensIn)
	assert.Equal(t, 40, stats.TokensOut)
	assert.Equal(t, 0, stats.Turns)
}

func TestScanSurvivesOversizedLine(t *testing.T) {
	// A single record past the line bound is dropped; everything after it
	// must still be counted.
	huge := `{"type":"user","message":{"role":"user","content":"` +
		strings.Repeat("x", maxLine+1024) + `"}}`
	path := writeTranscript(t,
		assistantLine,
		huge,
		assistantLine,
		userLine,
	)

	stats, err := Scan(path)
	require.NoError(t, err)

	assert.Equal(t, 200, stats.TokensIn, "both well-formed assistant lines counted")
	assert.Equal(t, 80, stats.TokensOut)
	assert.Equal(t, 1, stats.Turns, "oversized user record dropped, trailing one kept")
}

func TestScanMissingFile(t *testing.T) {
	stats, err := Scan(filepath.Join(t.TempDir(), "absent.jsonl"))

	require.NoError(t, err)
	assert.Zero(t, stats)
}

func TestScanIgnoresPlaceholderModel(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","message":{"role":"assistant","model":"claude-sonnet-4-20250514","usage":{"input_tokens":1,"output_tokens":1}}}`,
		`{"type":"assistant","message":{"role":"assistant","model":"<synthetic>","usage":{"input_tokens":1,"output_tokens":1}}}`,
	)

	stats, err := Scan(path)
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-20250514", stats.Model)
}

func TestScanCountsToolUse(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Bash"},{"type":"text","text":"ok"}],"usage":{"input_tokens":10,"output_tokens":5}}}`,
	)

	stats, err := Scan(path)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ToolCalls)
}

func TestScanStringContent(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","message":{"role":"user","content":"plain string content"}}`,
	)

	stats, err := Scan(path)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Turns)
	assert.Equal(t, 0, stats.ToolCalls)
}
