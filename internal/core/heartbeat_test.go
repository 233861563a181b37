package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/exec"
)

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestHeartbeatEmitsOnChange(t *testing.T) {
	r, rec := newTestRegistry(t, exec.NewMockRunner())

	log := filepath.Join(t.TempDir(), "s1.jsonl")
	appendLine(t, log, `{"type":"assistant","message":{"role":"assistant","usage":{"input_tokens":10,"output_tokens":5}}}`)

	_, err := r.RegisterSession("s1", "/w", "m", "default", "startup", log)
	require.NoError(t, err)

	r.heartbeat()

	changed := rec.ofType(domain.EventStatsChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, 10, changed[0].Session.TokensIn)
	assert.Equal(t, 5, changed[0].Session.TokensOut)
}

func TestHeartbeatSuppressesNoOpUpdates(t *testing.T) {
	r, rec := newTestRegistry(t, exec.NewMockRunner())

	log := filepath.Join(t.TempDir(), "s1.jsonl")
	appendLine(t, log, `{"type":"user","message":{"role":"user","content":"hi"}}`)

	_, err := r.RegisterSession("s1", "/w", "m", "default", "startup", log)
	require.NoError(t, err)

	r.heartbeat()
	require.Len(t, rec.ofType(domain.EventStatsChanged), 1)

	r.heartbeat()
	r.heartbeat()
	assert.Len(t, rec.ofType(domain.EventStatsChanged), 1,
		"unchanged derived values must not broadcast")
}

func TestHeartbeatPicksUpGrowth(t *testing.T) {
	r, rec := newTestRegistry(t, exec.NewMockRunner())

	log := filepath.Join(t.TempDir(), "s1.jsonl")
	appendLine(t, log, `{"type":"assistant","message":{"role":"assistant","usage":{"input_tokens":10,"output_tokens":5}}}`)

	_, err := r.RegisterSession("s1", "/w", "m", "default", "startup", log)
	require.NoError(t, err)

	r.heartbeat()
	appendLine(t, log, `{"type":"assistant","message":{"role":"assistant","usage":{"input_tokens":20,"output_tokens":8}}}`)
	r.heartbeat()

	changed := rec.ofType(domain.EventStatsChanged)
	require.Len(t, changed, 2)
	assert.Equal(t, 30, changed[1].Session.TokensIn)
	assert.Equal(t, 13, changed[1].Session.TokensOut)
}

func TestHeartbeatSkipsResumeSeededBaseline(t *testing.T) {
	r, rec := newTestRegistry(t, exec.NewMockRunner())

	log := filepath.Join(t.TempDir(), "s1.jsonl")
	appendLine(t, log, `{"type":"user","message":{"role":"user","content":"hi"}}`)

	_, err := r.RegisterSession("s1", "/w", "m", "default", "resume", log)
	require.NoError(t, err)

	r.heartbeat()

	assert.Empty(t, rec.ofType(domain.EventStatsChanged),
		"resume seeding already applied these stats")
}

func TestHeartbeatIgnoresSessionsWithoutLog(t *testing.T) {
	r, rec := newTestRegistry(t, exec.NewMockRunner())

	_, err := r.RegisterSession("s1", "/w", "m", "default", "startup", "")
	require.NoError(t, err)

	r.heartbeat()

	assert.Empty(t, rec.ofType(domain.EventStatsChanged))
}
