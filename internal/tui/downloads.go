package tui

import (
	"fmt"
	"strings"

	"github.com/JohnDeved/myrient-explorer/internal/download"
	"github.com/JohnDeved/myrient-explorer/internal/util"
)

// downloadsModel manages the downloads view.
type downloadsModel struct {
	items  []*download.Item
	cursor int
	offset int
	height int
}

func newDownloadsModel() downloadsModel {
	return downloadsModel{
		height: 20,
	}
}

func (d *downloadsModel) setItems(items []*download.Item) {
	d.items = items
	if d.cursor >= len(d.items) {
		d.cursor = len(d.items) - 1
		if d.cursor < 0 {
			d.cursor = 0
		}
	}
}

func (d *downloadsModel) moveUp() {
	if d.cursor > 0 {
		d.cursor--
		if d.cursor < d.offset {
			d.offset = d.cursor
		}
	}
}

func (d *downloadsModel) moveDown() {
	if d.cursor < len(d.items)-1 {
		d.cursor++
		if d.cursor >= d.offset+d.height {
			d.offset = d.cursor - d.height + 1
		}
	}
}

func (d *downloadsModel) selected() *download.Item {
	if d.cursor >= 0 && d.cursor < len(d.items) {
		return d.items[d.cursor]
	}
	return nil
}

func (d *downloadsModel) view(width int) string {
	var sb strings.Builder

	if len(d.items) == 0 {
		sb.WriteString(helpStyle.Render("\n  No downloads. Select a file in the explorer and press Enter.\n"))
		return sb.String()
	}

	active, queued, completed, failed := 0, 0, 0, 0
	for _, it := range d.items {
		it.Mu.Lock()
		switch it.Status {
		case download.StatusActive:
			active++
		case download.StatusQueued:
			queued++
		case download.StatusCompleted:
			completed++
		case download.StatusFailed:
			failed++
		}
		it.Mu.Unlock()
	}

	stats := fmt.Sprintf("  Active: %d  Queued: %d  Completed: %d  Failed: %d",
		active, queued, completed, failed)
	sb.WriteString(helpStyle.Render(stats))
	sb.WriteString("\n\n")

	end := d.offset + d.height
	if end > len(d.items) {
		end = len(d.items)
	}

	barWidth := 30
	if width > 100 {
		barWidth = 40
	}

	for i := d.offset; i < end; i++ {
		it := d.items[i]
		isSelected := i == d.cursor

		it.Mu.Lock()
		status := it.Status
		name := it.Name
		errVal := it.Error
		it.Mu.Unlock()

		progress := it.Progress()
		speed := it.Speed()
		done := it.DoneBytes.Load()
		total := it.TotalBytes.Load()

		var statusStr string
		switch status {
		case download.StatusQueued:
			statusStr = helpStyle.Render("[Queued]")
		case download.StatusActive:
			statusStr = successStyle.Render("[Downloading]")
		case download.StatusCompleted:
			statusStr = successStyle.Render("[Done]")
		case download.StatusFailed:
			statusStr = errorStyle.Render("[Failed]")
		}

		bar := renderProgressBar(progress, barWidth)

		var sizeInfo string
		if total > 0 {
			sizeInfo = fmt.Sprintf("%s / %s", util.FormatBytes(done), util.FormatBytes(total))
		} else if done > 0 {
			sizeInfo = util.FormatBytes(done)
		}

		var speedInfo string
		if status == download.StatusActive && speed > 0 {
			speedInfo = fmt.Sprintf(" %s/s", util.FormatBytes(int64(speed)))
		}

		line := fmt.Sprintf("  %s %s  %s  %s%s",
			statusStr, name, bar, sizeInfo, speedInfo)

		if errVal != nil {
			line += "  " + errorStyle.Render(errVal.Error())
		}

		if isSelected {
			line = selectedStyle.Render(line)
		}

		sb.WriteString(line)
		sb.WriteString("\n")

		if width > 80 {
			dest := helpStyle.Render("    to: " + util.TruncatePath(it.DestPath, width-8))
			sb.WriteString(dest)
			sb.WriteString("\n")
		}
	}

	if len(d.items) > d.height {
		pct := float64(d.offset) / float64(len(d.items)-d.height) * 100
		sb.WriteString(helpStyle.Render(
			fmt.Sprintf("  %d/%d downloads (%.0f%%)", d.cursor+1, len(d.items), pct),
		))
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderProgressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	empty := width - filled

	bar := progressBarFilled.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("[%s] %3.0f%%", bar, progress*100)
}
