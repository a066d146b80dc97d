package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
)

// formatDuration renders a duration compactly.
//
//	<1s  -> "0.Xs"
//	<1m  -> "X.Xs"
//	<1h  -> "XmYs"
//	else -> "XhYm"
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return fmt.Sprintf("0.%ds", ms/100)
	case ms < 60000:
		return fmt.Sprintf("%d.%ds", ms/1000, (ms%1000)/100)
	case ms < 3600000:
		return fmt.Sprintf("%dm%ds", ms/60000, (ms%60000)/1000)
	default:
		return fmt.Sprintf("%dh%dm", ms/3600000, (ms%3600000)/60000)
	}
}

// truncateMiddle shortens s to maxLen by replacing its middle with "...".
func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	available := maxLen - 3
	firstHalf := (available + 1) / 2
	lastHalf := available / 2
	return s[:firstHalf] + "..." + s[len(s)-lastHalf:]
}

func truncID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// displayID shows a dense id, with its raw id when a reverse mapping is loaded.
func displayID(id int, raw map[int]string) string {
	if r, ok := raw[id]; ok {
		return fmt.Sprintf("%d (%s)", id, truncateMiddle(r, 32))
	}
	return fmt.Sprintf("%d", id)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
