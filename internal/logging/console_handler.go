package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders records as a one-line header followed by indented
// detail bullets. Info lines for the same subject omit bullets whose value
// did not change since the previous line.
type prettyHandler struct {
	state     *consoleState
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

// consoleState is shared by every handler derived through WithAttrs/WithGroup.
type consoleState struct {
	mu     sync.Mutex
	w      io.Writer
	recent map[string]map[string]string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{
		state:     &consoleState{w: w, recent: make(map[string]map[string]string)},
		level:     lvl,
		addSource: addSource,
	}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// consoleRecord is a record split into header fields and detail attributes.
type consoleRecord struct {
	at        time.Time
	level     slog.Level
	component string
	device    string
	itemID    string
	message   string
	source    *slog.Source
	attrs     []kv
}

func (h *prettyHandler) parse(record slog.Record) consoleRecord {
	rec := consoleRecord{
		at:      record.Time,
		level:   record.Level,
		message: strings.TrimSpace(record.Message),
		source:  record.Source(),
	}
	if rec.at.IsZero() {
		rec.at = time.Now()
	}
	if rec.message == "" {
		rec.message = "(no message)"
	}

	all := make([]kv, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&all, h.groups, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&all, h.groups, attr)
		return true
	})
	for _, attr := range dedupeKVsByKey(all) {
		switch attr.key {
		case FieldComponent:
			rec.component = attrString(attr.value)
			continue
		case FieldRunID:
			continue
		case FieldItemID:
			rec.itemID = attrString(attr.value)
		case FieldDevice:
			rec.device = attrString(attr.value)
		}
		rec.attrs = append(rec.attrs, attr)
	}
	return rec
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}
	rec := h.parse(record)

	var buf bytes.Buffer
	buf.Grow(256 + len(rec.attrs)*32)

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.writeHeader(&buf, rec)
	if rec.level < slog.LevelInfo {
		writeDebugFields(&buf, rec.attrs)
	} else {
		fields, hidden := selectInfoFields(rec.attrs, infoAttrLimit)
		fields = h.state.dropRepeated(infoSummaryKey(rec.component, rec.itemID), fields, rec.level)
		writeInfoFields(&buf, fields, hidden)
	}
	_, err := h.state.w.Write(buf.Bytes())
	return err
}

func (h *prettyHandler) writeHeader(buf *bytes.Buffer, rec consoleRecord) {
	buf.WriteString(formatTimestamp(rec.at))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(rec.level))
	if rec.component != "" {
		buf.WriteString(" [" + rec.component + "]")
	}
	if subject := composeSubject(rec.device, rec.itemID); subject != "" {
		buf.WriteString(" " + subject)
	}
	buf.WriteString(" - " + rec.message)
	if h.addSource && rec.source != nil {
		buf.WriteString(" [" + filepath.Base(rec.source.File) + ":" + strconv.Itoa(rec.source.Line) + "]")
	}
	buf.WriteByte('\n')
}

func writeInfoFields(buf *bytes.Buffer, fields []infoField, hidden int) {
	for _, field := range fields {
		buf.WriteString("    - " + field.label + ": " + field.value + "\n")
	}
	switch {
	case hidden == 1:
		buf.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		buf.WriteString("    + " + strconv.Itoa(hidden) + " more fields hidden\n")
	}
}

func writeDebugFields(buf *bytes.Buffer, attrs []kv) {
	for _, attr := range attrs {
		buf.WriteString("    " + attr.key + ": " + formatValue(attr.value) + "\n")
	}
}

// composeSubject names what a line is about: the camera device, the
// inventory item, or both.
func composeSubject(device, itemID string) string {
	device = strings.TrimSpace(device)
	itemID = strings.TrimSpace(itemID)
	switch {
	case device != "" && itemID != "":
		return device + " · Item #" + itemID
	case itemID != "":
		return "Item #" + itemID
	default:
		return device
	}
}

// dropRepeated removes info bullets already shown with the same value for
// key. Warnings and errors always show every bullet but still update the
// remembered values.
func (s *consoleState) dropRepeated(key string, fields []infoField, level slog.Level) []infoField {
	if key == "" || len(fields) == 0 {
		return fields
	}
	seen, ok := s.recent[key]
	if !ok {
		seen = make(map[string]string)
		s.recent[key] = seen
	}
	out := fields[:0:0]
	for _, field := range fields {
		if prev, ok := seen[field.label]; ok && prev == field.value && level <= slog.LevelInfo {
			continue
		}
		seen[field.label] = field.value
		out = append(out, field)
	}
	return out
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

type kv struct {
	key   string
	value slog.Value
}

// dedupeKVsByKey keeps the first position of each key with its last value.
func dedupeKVsByKey(attrs []kv) []kv {
	positions := make(map[string]int, len(attrs))
	deduped := make([]kv, 0, len(attrs))
	for _, attr := range attrs {
		if attr.key == "" {
			continue
		}
		if pos, ok := positions[attr.key]; ok {
			deduped[pos].value = attr.value
			continue
		}
		positions[attr.key] = len(deduped)
		deduped = append(deduped, attr)
	}
	return deduped
}

func flattenAttrs(dst *[]kv, prefix []string, attrs []slog.Attr) {
	for _, attr := range attrs {
		flattenAttr(dst, prefix, attr)
	}
}

func flattenAttr(dst *[]kv, prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(append([]string(nil), prefix...), attr.Key)
		}
		flattenAttrs(dst, next, attr.Value.Group())
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		parts := append(append([]string(nil), prefix...), attr.Key)
		key = strings.Trim(strings.Join(parts, "."), ".")
	}
	*dst = append(*dst, kv{key: key, value: attr.Value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
