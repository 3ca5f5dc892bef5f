package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/markuslindenberg/mb8600_exporter/hnap"
	"github.com/markuslindenberg/mb8600_exporter/sink"
	"github.com/markuslindenberg/mb8600_exporter/status"
)

var titleStyle = lipgloss.NewStyle().Bold(true)

// rawDump is one line written by dump --raw and read back by replay.
type rawDump struct {
	TS   string             `json:"ts"`
	Data hnap.BatchResponse `json:"data"`
}

func renderTable(w io.Writer, title string, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, t.Render())
}

func downstreamRows(channels []status.DownstreamChannel) [][]string {
	rows := make([][]string, 0, len(channels))
	for _, c := range channels {
		rows = append(rows, []string{
			strconv.Itoa(c.Channel),
			c.LockStatus,
			c.Modulation,
			strconv.Itoa(c.ChannelID),
			c.Frequency.String(),
			c.Power.String(),
			c.SNR.String(),
			humanize.Comma(c.Corrected),
			humanize.Comma(c.Uncorrected),
		})
	}
	return rows
}

func upstreamRows(channels []status.UpstreamChannel) [][]string {
	rows := make([][]string, 0, len(channels))
	for _, c := range channels {
		rows = append(rows, []string{
			strconv.Itoa(c.Channel),
			c.LockStatus,
			c.ChannelType,
			strconv.Itoa(c.ChannelID),
			c.SymbolRate.String(),
			c.Frequency.String(),
			c.Power.String(),
		})
	}
	return rows
}

func logRows(logs []status.ModemLog) [][]string {
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		ts := status.TimeNotEstablished
		if l.Timestamp != nil {
			ts = l.Timestamp.Format(time.RFC3339)
		}
		rows = append(rows, []string{ts, l.Level, l.Message})
	}
	return rows
}

// dump prints both channel tables, or with raw the undecoded response of
// every status action.
func dump(ctx context.Context, modem modemConfig, w io.Writer, raw bool) error {
	ctx, cancel := context.WithTimeout(ctx, modem.pollTimeout())
	defer cancel()

	client, err := modem.newClient(modem.roundTripper())
	if err != nil {
		return err
	}

	if raw {
		if _, err := client.Login(ctx); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		batch, err := client.PerformBatch(ctx, hnap.StatusActions...)
		if err != nil {
			return err
		}
		return json.NewEncoder(w).Encode(rawDump{TS: time.Now().Format(time.RFC3339), Data: batch})
	}

	rawSnap, err := poll(ctx, client)
	if err != nil {
		return err
	}
	snap, errs := decode(rawSnap, client.Location())
	if len(errs) > 0 {
		return errs[0]
	}

	renderChannels(w, snap)
	return nil
}

func renderChannels(w io.Writer, snap sink.Snapshot) {
	renderTable(w, "Downstream Channels",
		[]string{"Channel", "Lock Status", "Modulation", "Channel ID", "Frequency", "Power", "SNR", "Corrected", "Uncorrected"},
		downstreamRows(snap.Downstream))
	renderTable(w, "Upstream Channels",
		[]string{"Channel", "Lock Status", "Channel Type", "Channel ID", "Symbol Rate", "Frequency", "Power"},
		upstreamRows(snap.Upstream))
}

// logFilter selects and formats entries for the logs command.
type logFilter struct {
	// grep keeps entries whose level or message contains it.
	grep string
	// asJSON prints one {"ts","priority","msg"} object per line instead of a table.
	asJSON bool
}

func (f logFilter) match(l status.ModemLog) bool {
	return f.grep == "" || strings.Contains(l.Level, f.grep) || strings.Contains(l.Message, f.grep)
}

type logLine struct {
	TS       *string `json:"ts"`
	Priority string  `json:"priority"`
	Msg      string  `json:"msg"`
}

// writeLogs dedupes, sorts and filters logs, then prints them.
func writeLogs(w io.Writer, logs []status.ModemLog, filter logFilter) error {
	logs = status.DedupeLogs(logs)
	status.SortLogs(logs)

	matched := logs[:0]
	for _, l := range logs {
		if filter.match(l) {
			matched = append(matched, l)
		}
	}

	if !filter.asJSON {
		renderTable(w, "Event Log", []string{"Timestamp", "Level", "Message"}, logRows(matched))
		return nil
	}

	enc := json.NewEncoder(w)
	for _, l := range matched {
		line := logLine{Priority: l.Level, Msg: l.Message}
		if l.Timestamp != nil {
			ts := l.Timestamp.Format(time.RFC3339)
			line.TS = &ts
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func printLogs(ctx context.Context, modem modemConfig, w io.Writer, filter logFilter) error {
	ctx, cancel := context.WithTimeout(ctx, modem.pollTimeout())
	defer cancel()

	client, err := modem.newClient(modem.roundTripper())
	if err != nil {
		return err
	}
	if _, err := client.Login(ctx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	logs, err := client.Logs(ctx)
	if err != nil {
		return err
	}
	return writeLogs(w, logs, filter)
}
