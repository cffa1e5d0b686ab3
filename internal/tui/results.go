package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JohnDeved/myrient-explorer/internal/search"
)

// growMargin is how close to the bottom of the revealed window the
// cursor must be before another page of results is revealed.
const growMargin = 5

// resultsModel manages the scrollable result list of the explorer view.
type resultsModel struct {
	items  []search.Result
	cursor int
	offset int
	height int
}

func newResultsModel() resultsModel {
	return resultsModel{height: 20}
}

func (r *resultsModel) setItems(items []search.Result) {
	r.items = items
	if r.cursor >= len(r.items) {
		r.cursor = len(r.items) - 1
	}
	if r.cursor < 0 {
		r.cursor = 0
	}
	r.normalizeViewport()
}

func (r *resultsModel) reset() {
	r.items = nil
	r.cursor = 0
	r.offset = 0
}

func (r *resultsModel) normalizeViewport() {
	if len(r.items) == 0 {
		r.cursor = 0
		r.offset = 0
		return
	}
	if r.cursor < 0 {
		r.cursor = 0
	}
	if r.cursor >= len(r.items) {
		r.cursor = len(r.items) - 1
	}
	if r.offset < 0 {
		r.offset = 0
	}
	if r.cursor < r.offset {
		r.offset = r.cursor
	}
	if r.height > 0 && r.cursor >= r.offset+r.height {
		r.offset = r.cursor - r.height + 1
	}
	maxOffset := len(r.items) - r.height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if r.offset > maxOffset {
		r.offset = maxOffset
	}
}

func (r *resultsModel) selected() *search.Result {
	r.normalizeViewport()
	if r.cursor >= 0 && r.cursor < len(r.items) {
		return &r.items[r.cursor]
	}
	return nil
}

// nearBottom reports whether the cursor is close enough to the end of
// the revealed window that more results should be revealed.
func (r *resultsModel) nearBottom() bool {
	return len(r.items) > 0 && r.cursor >= len(r.items)-growMargin
}

func (r *resultsModel) moveUp() {
	if r.cursor > 0 {
		r.cursor--
		if r.cursor < r.offset {
			r.offset = r.cursor
		}
	}
}

func (r *resultsModel) moveDown() {
	if r.cursor < len(r.items)-1 {
		r.cursor++
		if r.cursor >= r.offset+r.height {
			r.offset = r.cursor - r.height + 1
		}
	}
}

func (r *resultsModel) pageUp() {
	if len(r.items) == 0 || r.height <= 0 {
		r.cursor = 0
		r.offset = 0
		return
	}
	rel := r.cursor - r.offset
	r.offset -= r.height
	if r.offset < 0 {
		r.offset = 0
	}
	r.cursor = r.offset + rel
	r.normalizeViewport()
}

func (r *resultsModel) pageDown() {
	if len(r.items) == 0 || r.height <= 0 {
		return
	}
	rel := r.cursor - r.offset
	r.offset += r.height
	maxOffset := len(r.items) - r.height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if r.offset > maxOffset {
		r.offset = maxOffset
	}
	r.cursor = r.offset + rel
	r.normalizeViewport()
}

func (r *resultsModel) goHome() {
	r.cursor = 0
	r.offset = 0
}

func (r *resultsModel) goEnd() {
	r.cursor = len(r.items) - 1
	if r.cursor < 0 {
		r.cursor = 0
	}
	r.offset = r.cursor - r.height + 1
	if r.offset < 0 {
		r.offset = 0
	}
}

func (r *resultsModel) view(width int, total int, hasMore bool) string {
	var sb strings.Builder
	r.normalizeViewport()

	end := r.offset + r.height
	if end > len(r.items) {
		end = len(r.items)
	}

	rowWidth := width - selectedStyle.GetHorizontalFrameSize()
	if rowWidth < 12 {
		rowWidth = 12
	}

	for i := r.offset; i < end; i++ {
		sb.WriteString(renderResultRow(&r.items[i], rowWidth, i == r.cursor))
		sb.WriteString("\n")
	}

	if len(r.items) > r.height || hasMore {
		shown := len(r.items)
		info := fmt.Sprintf("  %d/%d shown", r.cursor+1, shown)
		if hasMore {
			info += fmt.Sprintf("  (%d total, scroll down for more)", total)
		}
		sb.WriteString(helpStyle.Render(info))
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderResultRow(res *search.Result, rowWidth int, isSelected bool) string {
	var line string
	switch res.Kind {
	case search.KindFolder:
		name := folderStyle.Render(truncateText(res.Name+"/", max(12, rowWidth-40)))
		detail := ""
		if res.Breadcrumb != "" {
			detail = helpStyle.Render(res.Breadcrumb)
		} else {
			detail = providerBadge.Render(strings.ReplaceAll(res.Provider, "_", " "))
			if res.Count > 0 {
				detail += helpStyle.Render(fmt.Sprintf("  %d items", res.Count))
			}
		}
		line = fmt.Sprintf("   %s  %s", name, detail)
	default:
		name := fileStyle.Render(truncateText(res.Name, max(12, rowWidth-35)))
		size := ""
		if res.Entry != nil {
			size = res.Entry.Size
		}
		where := res.Breadcrumb
		if where == "" {
			where = res.Platform
		}
		line = fmt.Sprintf("   %s  %s  %s",
			name,
			sizeStyle.Render(size),
			helpStyle.Render(truncateText(where, 32)),
		)
	}

	if isSelected {
		return selectedStyle.Render(padToWidth(line, rowWidth))
	}
	return normalStyle.Render(padToWidth(line, rowWidth))
}

func truncateText(s string, maxWidth int) string {
	if maxWidth < 4 {
		return s
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	return string(r[:maxWidth-3]) + "..."
}

func padToWidth(s string, width int) string {
	pad := width - lipgloss.Width(s)
	if pad <= 0 {
		return s
	}
	return s + strings.Repeat(" ", pad)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
