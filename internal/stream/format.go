package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/appforge-dev/appforge/internal/deploy"
)

// formatTimestamp renders an event's Unix-millisecond timestamp as
// HH:MM:SS.mmm in local time, matching what the build console shows.
func formatTimestamp(unixMillis int64) string {
	return time.UnixMilli(unixMillis).Format("15:04:05.000")
}

// renderLines maps one event to the display lines pushed to the client.
// Multi-line payloads are split so the client can render incrementally;
// blank lines are dropped.
func renderLines(e deploy.Event) []string {
	var text string
	switch e.Type {
	case "command":
		text = fmt.Sprintf("Running %q", e.Text)
	default:
		// stdout, stderr and delimiter events relay their raw text.
		text = e.Text
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
