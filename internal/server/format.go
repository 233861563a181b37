package server

import (
	"fmt"
	"strings"

	"github.com/bdmorin/the-no-shop/internal/domain"
)

// FormatAnnotations renders drained annotations as the text block injected
// into the agent's next turn: numbered entries, each quoting the selected
// text line by line followed by the comment. Returns "" when there is
// nothing to inject so the caller can omit the block entirely.
func FormatAnnotations(anns []domain.Annotation) string {
	if len(anns) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("The user left feedback on your previous responses:\n")
	for i, a := range anns {
		fmt.Fprintf(&b, "\n%d. Regarding:\n", i+1)
		for _, line := range strings.Split(a.SelectedText, "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Comment: %s\n", a.Comment)
	}
	return b.String()
}
