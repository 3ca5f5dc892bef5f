package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markuslindenberg/mb8600_exporter/hnap"
	"github.com/markuslindenberg/mb8600_exporter/hnap/hnaptest"
	"github.com/markuslindenberg/mb8600_exporter/status"
)

const (
	testDownstream = "5^Locked^QAM256^2^591000000^-1.2^38.1^10^0|+|6^Locked^QAM256^3^597000000^-0.5^38.5^5^0"
	testUpstream   = "1^Locked^SC-QAM^1^5120^16.4^44.0^"
	testLogList    = "12:19:45^Fri Nov 18 2022\n^Critical (3)^No Ranging Response received" +
		"}-{Time Not Established\n^Notice (6)^Honoring MDD" +
		"}-{Time Not Established\n^Notice (6)^Honoring MDD"
)

func newTestModem(t *testing.T) (*hnaptest.Modem, modemConfig) {
	t.Helper()
	modem := hnaptest.New()
	modem.Downstream = testDownstream
	modem.Upstream = testUpstream
	modem.LogList = testLogList

	server := modem.Server()
	t.Cleanup(server.Close)

	return modem, modemConfig{
		url:      server.URL + "/HNAP1/",
		username: "admin",
		password: "motorola",
		location: time.UTC,
		timeout:  5 * time.Second,
	}
}

func TestExporter_Collect(t *testing.T) {
	_, cfg := newTestModem(t)
	exporter, err := NewExporter(cfg)
	require.NoError(t, err)

	expected := `
# HELP mb8600_up Was the last scrape of the MB8600 succesful.
# TYPE mb8600_up gauge
mb8600_up 1
# HELP mb8600_downstream_snr_db Downstream SNR
# TYPE mb8600_downstream_snr_db gauge
mb8600_downstream_snr_db{channel="05",channel_id="2",modulation="QAM256"} 38.1
mb8600_downstream_snr_db{channel="06",channel_id="3",modulation="QAM256"} 38.5
# HELP mb8600_upstream_locked Upstream Lock Status
# TYPE mb8600_upstream_locked gauge
mb8600_upstream_locked{channel="01",channel_id="1",channel_type="SC-QAM"} 1
# HELP mb8600_log_entries Number of distinct event log entries by level.
# TYPE mb8600_log_entries gauge
mb8600_log_entries{level="Critical (3)"} 1
mb8600_log_entries{level="Notice (6)"} 1
`
	err = testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"mb8600_up", "mb8600_downstream_snr_db", "mb8600_upstream_locked", "mb8600_log_entries")
	assert.NoError(t, err)
}

func TestExporter_LoginFailure(t *testing.T) {
	_, cfg := newTestModem(t)
	cfg.password = "wrong"
	exporter, err := NewExporter(cfg)
	require.NoError(t, err)

	expected := `
# HELP mb8600_up Was the last scrape of the MB8600 succesful.
# TYPE mb8600_up gauge
mb8600_up 0
# HELP mb8600_exporter_login_failures_total Number of rejected HNAP logins.
# TYPE mb8600_exporter_login_failures_total counter
mb8600_exporter_login_failures_total 1
`
	err = testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"mb8600_up", "mb8600_exporter_login_failures_total")
	assert.NoError(t, err)
}

func TestExporter_ParseFailure(t *testing.T) {
	modem, cfg := newTestModem(t)
	modem.Downstream = testDownstream + "|+|1^locked"
	exporter, err := NewExporter(cfg)
	require.NoError(t, err)

	expected := `
# HELP mb8600_up Was the last scrape of the MB8600 succesful.
# TYPE mb8600_up gauge
mb8600_up 1
# HELP mb8600_exporter_parse_errors_total Number of errors while decoding status tables.
# TYPE mb8600_exporter_parse_errors_total counter
mb8600_exporter_parse_errors_total{table="downstream"} 1
# HELP mb8600_upstream_locked Upstream Lock Status
# TYPE mb8600_upstream_locked gauge
mb8600_upstream_locked{channel="01",channel_id="1",channel_type="SC-QAM"} 1
`
	err = testutil.CollectAndCompare(exporter, strings.NewReader(expected),
		"mb8600_up", "mb8600_exporter_parse_errors_total", "mb8600_upstream_locked", "mb8600_downstream_snr_db")
	assert.NoError(t, err)
}

type recordingSink struct {
	records []status.Record
}

func (r *recordingSink) Ingest(_ context.Context, record status.Record) error {
	r.records = append(r.records, record)
	return nil
}

func TestRead(t *testing.T) {
	_, cfg := newTestModem(t)
	rec := &recordingSink{}

	require.NoError(t, read(context.Background(), cfg, rec))

	var measurements []string
	for _, r := range rec.records {
		measurements = append(measurements, r.Measurement())
	}
	assert.Equal(t, []string{"log", "log", "downstream", "downstream", "upstream"}, measurements)

	// Logs are deduplicated and the one without a timestamp sorts first.
	first := rec.records[0].(status.ModemLog)
	assert.Nil(t, first.Timestamp)
}

func TestDump(t *testing.T) {
	_, cfg := newTestModem(t)

	var buf bytes.Buffer
	require.NoError(t, dump(context.Background(), cfg, &buf, false))
	out := buf.String()
	assert.Contains(t, out, "Downstream Channels")
	assert.Contains(t, out, "Upstream Channels")
	assert.Contains(t, out, "591000000")
	assert.Contains(t, out, "SC-QAM")
}

func TestDumpRaw(t *testing.T) {
	_, cfg := newTestModem(t)

	var buf bytes.Buffer
	require.NoError(t, dump(context.Background(), cfg, &buf, true))

	var out struct {
		TS   string                     `json:"ts"`
		Data map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.NotEmpty(t, out.TS)
	assert.Contains(t, out.Data, "GetMotoStatusDownstreamChannelInfoResponse")
	assert.Contains(t, out.Data, "GetMotoStatusSoftwareResponse")
}

func TestPrintLogs(t *testing.T) {
	_, cfg := newTestModem(t)

	var buf bytes.Buffer
	require.NoError(t, printLogs(context.Background(), cfg, &buf, logFilter{}))
	out := buf.String()
	assert.Contains(t, out, status.TimeNotEstablished)
	assert.Contains(t, out, "2022-11-18T12:19:45Z")
	assert.Equal(t, 1, strings.Count(out, "Honoring MDD"))
}

func TestPrintLogs_GrepJSON(t *testing.T) {
	_, cfg := newTestModem(t)

	var buf bytes.Buffer
	require.NoError(t, printLogs(context.Background(), cfg, &buf, logFilter{grep: "Critical", asJSON: true}))
	assert.Equal(t, `{"ts":"2022-11-18T12:19:45Z","priority":"Critical (3)","msg":"No Ranging Response received"}`+"\n", buf.String())
}

func TestParseLogs(t *testing.T) {
	// One log list per line, quoted and with escaped newlines as found in
	// JSON dumps. The second line repeats an entry of the first.
	input := `"12:19:45^Fri Nov 18 2022\n^Critical (3)^No Ranging Response received}-{Time Not Established\n^Notice (6)^Honoring MDD"` + "\n" +
		"\n" +
		`"08:02:11^Sat Nov  5 2022\n^Warning (5)^Dynamic Range Window violation}-{Time Not Established\n^Notice (6)^Honoring MDD"` + "\n"

	tests := []struct {
		name   string
		filter logFilter
		want   []logLine
	}{
		{
			name:   "all",
			filter: logFilter{asJSON: true},
			want: []logLine{
				{Priority: "Notice (6)", Msg: "Honoring MDD"},
				{TS: stringPtr("2022-11-05T08:02:11Z"), Priority: "Warning (5)", Msg: "Dynamic Range Window violation"},
				{TS: stringPtr("2022-11-18T12:19:45Z"), Priority: "Critical (3)", Msg: "No Ranging Response received"},
			},
		},
		{
			name:   "grep priority",
			filter: logFilter{grep: "Warning", asJSON: true},
			want: []logLine{
				{TS: stringPtr("2022-11-05T08:02:11Z"), Priority: "Warning (5)", Msg: "Dynamic Range Window violation"},
			},
		},
		{
			name:   "grep message",
			filter: logFilter{grep: "MDD", asJSON: true},
			want: []logLine{
				{Priority: "Notice (6)", Msg: "Honoring MDD"},
			},
		},
		{
			name:   "no match",
			filter: logFilter{grep: "Reboot", asJSON: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, parseLogs(strings.NewReader(input), &buf, time.UTC, tt.filter))

			var got []logLine
			dec := json.NewDecoder(&buf)
			for dec.More() {
				var l logLine
				require.NoError(t, dec.Decode(&l))
				got = append(got, l)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLogs_Table(t *testing.T) {
	var buf bytes.Buffer
	input := `"Time Not Established\n^Notice (6)^Honoring MDD"`
	require.NoError(t, parseLogs(strings.NewReader(input), &buf, time.UTC, logFilter{}))
	assert.Contains(t, buf.String(), "Event Log")
	assert.Contains(t, buf.String(), "Honoring MDD")
}

func TestParseLogs_Malformed(t *testing.T) {
	var buf bytes.Buffer
	err := parseLogs(strings.NewReader("ok line without marker"), &buf, time.UTC, logFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrMalformedLog))
	assert.Contains(t, err.Error(), "line 1")
}

func TestReplay(t *testing.T) {
	_, cfg := newTestModem(t)

	// Two polls saved by dump --raw.
	var dumped bytes.Buffer
	require.NoError(t, dump(context.Background(), cfg, &dumped, true))
	require.NoError(t, dump(context.Background(), cfg, &dumped, true))

	var buf bytes.Buffer
	require.NoError(t, replay(&dumped, &buf, time.UTC))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Downstream Channels"))
	assert.Equal(t, 2, strings.Count(out, "Upstream Channels"))
	assert.Contains(t, out, "597000000")
	assert.Contains(t, out, "SC-QAM")
}

func TestReplay_Errors(t *testing.T) {
	malformedDump := `{"ts":"2022-11-18T12:19:45Z","data":{` +
		`"GetMotoStatusLogResponse":{"MotoStatusLogList":""},` +
		`"GetMotoStatusDownstreamChannelInfoResponse":{"MotoConnDownstreamChannel":"1^Locked"},` +
		`"GetMotoStatusUpstreamChannelInfoResponse":{"MotoConnUpstreamChannel":""}}}` + "\n"

	tests := []struct {
		name  string
		input string
		is    error
	}{
		{name: "not json", input: "not json\n"},
		{name: "missing table", input: `{"ts":"2022-11-18T12:19:45Z","data":{}}` + "\n", is: hnap.ErrResponseMissing},
		{name: "malformed channel", input: malformedDump, is: status.ErrMalformedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := replay(strings.NewReader(tt.input), &buf, time.UTC)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 1")
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is))
			}
		})
	}
}

func stringPtr(s string) *string { return &s }
