package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/markuslindenberg/mb8600_exporter/status"
)

// maxLineSize bounds a single input line. A raw dump of every status action
// is a few tens of kilobytes.
const maxLineSize = 4 << 20

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// parseLogs decodes log lists read from r, one per line, as copied from the
// modem or from a raw dump. Surrounding quotes are ignored. Entries from all
// lines are deduplicated and sorted together.
func parseLogs(r io.Reader, w io.Writer, loc *time.Location, filter logFilter) error {
	var logs []status.ModemLog

	scanner := newLineScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parsed, err := status.LogList(line).Logs(loc)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		logs = append(logs, parsed...)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return writeLogs(w, logs, filter)
}

// replay prints the channel tables of every dump --raw line read from r.
func replay(r io.Reader, w io.Writer, loc *time.Location) error {
	scanner := newLineScanner(r)
	for n := 1; scanner.Scan(); n++ {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}

		var d rawDump
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		raw, err := d.Data.Snapshot()
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		snap, errs := decode(raw, loc)
		if len(errs) > 0 {
			return fmt.Errorf("line %d: %w", n, errs[0])
		}

		fmt.Fprintln(w, titleStyle.Render(d.TS))
		renderChannels(w, snap)
		fmt.Fprintln(w)
	}
	return scanner.Err()
}
