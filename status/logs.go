package status

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	logSeparator = "}-{"

	// TimeNotEstablished replaces the timestamp of entries logged before the
	// modem synchronised its clock.
	TimeNotEstablished = "Time Not Established"

	logTimeLayout = "15:04:05^Mon Jan 2 2006"
)

// LogError reports a log record that could not be decoded.
type LogError struct {
	Raw string
	Err error
}

func (e *LogError) Error() string { return fmt.Sprintf("malformed log %q: %v", e.Raw, e.Err) }

func (e *LogError) Unwrap() error { return e.Err }

func (e *LogError) Is(target error) bool { return target == ErrMalformedLog }

// ModemLog is one entry of the modem's event log. Timestamp is nil when the
// modem had not established the time of day.
type ModemLog struct {
	Timestamp *time.Time `json:"timestamp"`
	Level     string     `json:"level"`
	Message   string     `json:"message"`
}

func (ModemLog) Measurement() string { return "log" }

func (l ModemLog) key() string {
	ts := TimeNotEstablished
	if l.Timestamp != nil {
		ts = l.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return ts + "\x00" + l.Level + "\x00" + l.Message
}

// LogList is the raw MotoStatusLogList value.
type LogList string

func (l LogList) Len() int { return countRecords(string(l), logSeparator) }

// Logs decodes every entry, interpreting timestamps in loc (UTC when nil).
func (l LogList) Logs(loc *time.Location) ([]ModemLog, error) {
	records := splitRecords(string(l), logSeparator)
	logs := make([]ModemLog, 0, len(records))
	for _, record := range records {
		log, err := ParseLog(record, loc)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// ParseLog decodes a single "<time>^<date>\n^<level>^<message>" record.
func ParseLog(raw string, loc *time.Location) (ModemLog, error) {
	if loc == nil {
		loc = time.UTC
	}
	line := trimRecord(raw)

	var (
		log  ModemLog
		rest string
	)
	if strings.HasPrefix(line, TimeNotEstablished) {
		rest = strings.TrimPrefix(line, TimeNotEstablished)
		rest = strings.TrimLeft(rest, "^")
		rest = trimNewline(rest)
	} else {
		marker, remainder, ok := cutNewline(line)
		if !ok {
			return ModemLog{}, &LogError{Raw: raw, Err: fmt.Errorf("missing newline after timestamp")}
		}
		ts, err := parseLogTime(marker, loc)
		if err != nil {
			return ModemLog{}, &LogError{Raw: raw, Err: err}
		}
		log.Timestamp = &ts
		rest = remainder
	}

	level, message, ok := strings.Cut(strings.TrimLeft(rest, "^"), fieldSeparator)
	if !ok {
		return ModemLog{}, &LogError{Raw: raw, Err: fmt.Errorf("missing separator between level and message")}
	}
	log.Level = strings.TrimSpace(level)
	log.Message = strings.TrimSpace(message)
	return log, nil
}

// cutNewline splits on the first newline, real or in the escaped
// two-character form found in JSON dumps of the log list.
func cutNewline(s string) (before, after string, found bool) {
	nl := strings.Index(s, "\n")
	escaped := strings.Index(s, `\n`)
	switch {
	case escaped >= 0 && (nl < 0 || escaped < nl):
		return s[:escaped], s[escaped+2:], true
	case nl >= 0:
		return s[:nl], s[nl+1:], true
	default:
		return s, "", false
	}
}

func trimNewline(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	return strings.TrimPrefix(s, `\n`)
}

func parseLogTime(marker string, loc *time.Location) (time.Time, error) {
	clock, date, ok := strings.Cut(strings.TrimSpace(marker), fieldSeparator)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", marker)
	}
	// The modem pads single digit days with a space.
	normalized := strings.TrimSpace(clock) + fieldSeparator + strings.Join(strings.Fields(date), " ")
	ts, err := time.ParseInLocation(logTimeLayout, normalized, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", marker, err)
	}
	return ts, nil
}

// DedupeLogs drops entries identical to an earlier one in the same batch,
// keeping first occurrences in order.
func DedupeLogs(logs []ModemLog) []ModemLog {
	seen := make(map[string]struct{}, len(logs))
	out := make([]ModemLog, 0, len(logs))
	for _, l := range logs {
		k := l.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	return out
}

// SortLogs orders entries by timestamp. Entries without one go first and keep
// their relative order.
func SortLogs(logs []ModemLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		a, b := logs[i].Timestamp, logs[j].Timestamp
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
}
