package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdmorin/the-no-shop/internal/domain"
)

func TestCacheServesFreshEntryWithoutRescan(t *testing.T) {
	path := writeTranscript(t, assistantLine)

	scans := 0
	c := NewCache(time.Minute)
	c.scan = func(p string) (domain.TranscriptStats, error) {
		scans++
		return Scan(p)
	}

	first := c.Stats("s1", path)
	second := c.Stats("s1", path)

	assert.Equal(t, 1, scans, "fresh entry with unchanged byte length must be served from cache")
	assert.Equal(t, first, second)
}

func TestCacheRescansOnGrowth(t *testing.T) {
	path := writeTranscript(t, assistantLine)

	scans := 0
	c := NewCache(time.Minute)
	c.scan = func(p string) (domain.TranscriptStats, error) {
		scans++
		return Scan(p)
	}

	before := c.Stats("s1", path)
	assert.Equal(t, 40, before.TokensOut)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(assistantLine + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	after := c.Stats("s1", path)

	assert.Equal(t, 2, scans, "byte-length change forces a re-scan regardless of TTL")
	assert.Equal(t, 80, after.TokensOut)
}

func TestCacheRescansAfterTTL(t *testing.T) {
	path := writeTranscript(t, userLine)

	scans := 0
	c := NewCache(time.Millisecond)
	c.scan = func(p string) (domain.TranscriptStats, error) {
		scans++
		return Scan(p)
	}

	c.Stats("s1", path)
	time.Sleep(5 * time.Millisecond)
	c.Stats("s1", path)

	assert.Equal(t, 2, scans)
}

func TestCacheEntriesAreKeyedPerSession(t *testing.T) {
	path := writeTranscript(t, userLine)

	scans := 0
	c := NewCache(time.Minute)
	c.scan = func(p string) (domain.TranscriptStats, error) {
		scans++
		return Scan(p)
	}

	c.Stats("s1", path)
	c.Stats("s2", path)

	assert.Equal(t, 2, scans)
}

func TestRefreshBypassesCache(t *testing.T) {
	path := writeTranscript(t, userLine)

	scans := 0
	c := NewCache(time.Minute)
	c.scan = func(p string) (domain.TranscriptStats, error) {
		scans++
		return Scan(p)
	}

	c.Stats("s1", path)
	c.Refresh("s1", path)

	assert.Equal(t, 2, scans)
}

func TestLocatePathDerived(t *testing.T) {
	projects := t.TempDir()
	dir := filepath.Join(projects, "-home-user-proj")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "abc123.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got := LocatePath(projects, "/home/user/proj", "abc123")

	assert.Equal(t, path, got)
}

func TestLocatePathGlobFallback(t *testing.T) {
	projects := t.TempDir()
	dir := filepath.Join(projects, "-somewhere-else")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "abc123.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got := LocatePath(projects, "/home/user/proj", "abc123")

	assert.Equal(t, path, got)
}

func TestLocatePathNotFound(t *testing.T) {
	assert.Equal(t, "", LocatePath(t.TempDir(), "/home/user/proj", "missing"))
}
