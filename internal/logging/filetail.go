package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLogLineBytes = 1024 * 1024

// TailFile returns up to limit of the newest events from a JSON log file
// written by the daemon logger, plus the offset to resume reading from. A
// missing file yields no events and offset 0.
func TailFile(path string, limit int) ([]LogEvent, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineBytes)
	ring := make([]string, limit)
	count, idx := 0, 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	events := make([]LogEvent, 0, count)
	start := 0
	if count == limit {
		start = idx
	}
	for i := range count {
		events = append(events, ParseLogLine(ring[(start+i)%limit]))
	}
	return events, offset, nil
}

// ReadFileFrom returns the events appended after offset. A file that shrank
// (rotated or truncated) is read from the start.
func ReadFileFrom(path string, offset int64) ([]LogEvent, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var events []LogEvent
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// a partial trailing line is left for the next read
			if errors.Is(err, io.EOF) {
				break
			}
			return events, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if text := strings.TrimSpace(line); text != "" {
			events = append(events, ParseLogLine(text))
		}
	}
	return events, offset, nil
}

// ParseLogLine converts one JSON log record into a LogEvent. Lines that are
// not JSON become a bare message.
func ParseLogLine(line string) LogEvent {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEvent{Message: strings.TrimSpace(line)}
	}
	evt := LogEvent{Fields: make(map[string]string)}
	for key, value := range raw {
		switch key {
		case "ts":
			if s, ok := value.(string); ok {
				evt.Timestamp, _ = time.Parse(time.RFC3339, s)
			}
		case "level":
			evt.Level = strings.ToUpper(fmt.Sprint(value))
		case "msg":
			evt.Message = strings.TrimSpace(fmt.Sprint(value))
		case FieldComponent:
			evt.Component = fmt.Sprint(value)
		case FieldDevice:
			evt.Device = fmt.Sprint(value)
		case FieldRunID:
			evt.RunID = fmt.Sprint(value)
		case FieldCorrelationID:
			evt.CorrelationID = fmt.Sprint(value)
		case FieldItemID:
			if n, ok := value.(float64); ok {
				evt.ItemID = int64(n)
			}
		default:
			evt.Fields[key] = fmt.Sprint(value)
		}
	}
	return evt
}
