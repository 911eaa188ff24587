package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"shelfscan/internal/inventory"
	"shelfscan/internal/logging"
	"shelfscan/internal/scan"
	"shelfscan/internal/session"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn", "warning":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stateLabel turns a snake_case state name into display text ("checked_out" -> "Checked Out").
func stateLabel(state string) string {
	state = strings.TrimSpace(strings.ReplaceAll(state, "_", " "))
	if state == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(state)
}

func sessionStateKind(state session.State) statusKind {
	switch state {
	case session.Available:
		return statusOK
	case session.CheckedOut:
		return statusWarn
	default:
		return statusInfo
	}
}

func formatScanEvent(seq uint64, evt scan.Event) string {
	return fmt.Sprintf("%s scan #%d: item %d", evt.ObservedAt.Local().Format(time.DateTime), seq, evt.ItemID)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(session.DateLayout)
}

func itemDetailPairs(item inventory.Item) [][2]string {
	checkedOut := yesNo(item.IsCheckedOut)
	return [][2]string{
		{"ID", fmt.Sprintf("%d", item.ID)},
		{"Name", item.Name},
		{"Description", item.Description},
		{"Manufacturer", item.Manufacturer},
		{"Manufacturer Contact", item.ManufacturerContact},
		{"Tags", strings.Join(item.Tags, ", ")},
		{"Checked Out", checkedOut},
		{"Checked Out Since", formatTimestamp(item.CheckOutDate)},
		{"Point Of Contact", item.CheckOutPOC},
		{"Image", item.ImagePath},
		{"Added", formatTimestamp(item.DateAdded)},
	}
}

func formatLogEvent(evt logging.LogEvent) string {
	ts := evt.Timestamp.Local().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	line := strings.Join(parts, " ")
	if subject := composeSubject(evt.ItemID, evt.Device); subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if len(evt.Details) == 0 {
		return line
	}
	var b strings.Builder
	b.WriteString(line)
	for _, detail := range evt.Details {
		if strings.TrimSpace(detail.Label) == "" || strings.TrimSpace(detail.Value) == "" {
			continue
		}
		b.WriteString("\n    - ")
		b.WriteString(detail.Label)
		b.WriteString(": ")
		b.WriteString(detail.Value)
	}
	return b.String()
}

func composeSubject(itemID int64, device string) string {
	device = strings.TrimSpace(device)
	switch {
	case itemID > 0 && device != "":
		return fmt.Sprintf("Item #%d (%s)", itemID, device)
	case itemID > 0:
		return fmt.Sprintf("Item #%d", itemID)
	default:
		return device
	}
}
