// Package transcript derives running statistics from the externally
// maintained append-only JSONL log of a session. The log is consulted only
// for derived stats, never as the primary capture path.
package transcript

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/bdmorin/the-no-shop/internal/domain"
	"github.com/bdmorin/the-no-shop/internal/metrics"
)

// modelPlaceholder appears in records emitted before the real model is known.
const modelPlaceholder = "<synthetic>"

type rawRecord struct {
	Type      string          `json:"type"`
	Version   string          `json:"version"`
	GitBranch string          `json:"gitBranch"`
	Message   json.RawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *rawUsage       `json:"usage"`
}

type rawUsage struct {
	InputTokens          int `json:"input_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
	OutputTokens         int `json:"output_tokens"`
}

type rawBlock struct {
	Type string `json:"type"`
}

// Scan reads the transcript at path line by line and accumulates statistics.
// Each line is an independent record; malformed lines are skipped. A missing
// or unreadable file is an expected condition (the log may not exist yet at
// session start) and yields zero stats with a nil error.
func Scan(path string) (domain.TranscriptStats, error) {
	var stats domain.TranscriptStats

	file, err := os.Open(path)
	if err != nil {
		return stats, nil
	}
	defer file.Close()
	metrics.Global().TranscriptScans.Add(1)

	scanLines(bufio.NewReader(file), func(line []byte) {
		if len(line) == 0 {
			return
		}

		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return
		}

		if rec.Version != "" {
			stats.Version = rec.Version
		}
		if rec.GitBranch != "" {
			stats.Branch = rec.GitBranch
		}

		switch rec.Type {
		case "user":
			stats.Turns++
		case "assistant":
			if len(rec.Message) == 0 {
				return
			}
			var msg rawMessage
			if err := json.Unmarshal(rec.Message, &msg); err != nil {
				return
			}
			if msg.Model != "" && msg.Model != modelPlaceholder {
				stats.Model = msg.Model
			}
			if msg.Usage != nil {
				stats.TokensIn += msg.Usage.InputTokens + msg.Usage.CacheReadInputTokens
				stats.TokensOut += msg.Usage.OutputTokens
			}
			stats.ToolCalls += countToolUse(msg.Content)
		}
	})

	return stats, nil
}

// maxLine bounds how much of a single record is buffered. Tool results can
// carry large payloads on one line; anything beyond the bound is treated as
// one more malformed record.
const maxLine = 8 * 1024 * 1024

// scanLines feeds each line to fn. An oversized line is dropped and scanning
// resynchronizes at the next newline, so one pathological record never hides
// the rest of the log. A torn final line (the log is being appended to)
// simply fails to parse; the next scan picks it up.
func scanLines(r *bufio.Reader, fn func([]byte)) {
	var line []byte
	skipping := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return
		}
		if skipping {
			if !isPrefix {
				skipping = false
			}
			continue
		}
		line = append(line, chunk...)
		if isPrefix {
			if len(line) > maxLine {
				line = line[:0]
				skipping = true
			}
			continue
		}
		fn(line)
		line = line[:0]
	}
}

// countToolUse counts tool_use content blocks. Best-effort enrichment: a
// string-shaped content field simply has no blocks.
func countToolUse(content json.RawMessage) int {
	if len(content) == 0 {
		return 0
	}
	var blocks []rawBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return 0
	}
	n := 0
	for _, b := range blocks {
		if b.Type == "tool_use" {
			n++
		}
	}
	return n
}
