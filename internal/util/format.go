// Package util has small formatting helpers shared by the TUI and CLI.
package util

import "fmt"

// FormatBytes formats a byte count into a human-readable string.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// TruncatePath truncates a path from the left, keeping the rightmost
// part visible.
func TruncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// Plural returns the singular or plural form for a count.
func Plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
