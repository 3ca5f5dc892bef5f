package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markuslindenberg/mb8600_exporter/status"
)

var (
	testTime = time.Date(2022, time.November, 18, 12, 19, 45, 0, time.UTC)

	testDownstream = status.DownstreamChannel{
		Channel:     5,
		LockStatus:  "Locked",
		Modulation:  "QAM256",
		ChannelID:   2,
		Frequency:   decimal.RequireFromString("591000000"),
		Power:       decimal.RequireFromString("-1.2"),
		SNR:         decimal.RequireFromString("38.1"),
		Corrected:   10,
		Uncorrected: 0,
	}
	testUpstream = status.UpstreamChannel{
		Channel:     1,
		LockStatus:  "Locked",
		ChannelType: "SC-QAM",
		ChannelID:   1,
		SymbolRate:  decimal.RequireFromString("5120"),
		Frequency:   decimal.RequireFromString("16.4"),
		Power:       decimal.RequireFromString("44.0"),
	}
)

type recordingSink struct {
	records []status.Record
	err     error
}

func (r *recordingSink) Ingest(_ context.Context, record status.Record) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, record)
	return nil
}

func TestIngestSnapshot(t *testing.T) {
	rec := &recordingSink{}
	snap := Snapshot{
		Logs:       []status.ModemLog{{Level: "Notice (6)", Message: "boot"}},
		Downstream: []status.DownstreamChannel{testDownstream},
		Upstream:   []status.UpstreamChannel{testUpstream},
	}
	require.NoError(t, IngestSnapshot(context.Background(), Multi{rec, Discard{}}, snap))

	require.Len(t, rec.records, 3)
	assert.Equal(t, "log", rec.records[0].Measurement())
	assert.Equal(t, "downstream", rec.records[1].Measurement())
	assert.Equal(t, "upstream", rec.records[2].Measurement())
}

func TestIngestSnapshot_StopsOnError(t *testing.T) {
	failing := &recordingSink{err: errors.New("boom")}
	after := &recordingSink{}
	snap := Snapshot{Downstream: []status.DownstreamChannel{testDownstream}}

	err := IngestSnapshot(context.Background(), Multi{failing, after}, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downstream channel 5")
	assert.Empty(t, after.records)
}

func TestInflux_Ingest(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/write", r.URL.Path)
		assert.Equal(t, "home", r.URL.Query().Get("org"))
		assert.Equal(t, "modem", r.URL.Query().Get("bucket"))
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		lines = append(lines, strings.TrimSpace(string(body)))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	influx, err := NewInflux(InfluxConfig{URL: server.URL, Token: "token", Org: "home", Bucket: "modem"})
	require.NoError(t, err)
	defer influx.Close()
	influx.Now = func() time.Time { return testTime }

	ctx := context.Background()
	ts := testTime.Add(-time.Hour)
	require.NoError(t, influx.Ingest(ctx, status.ModemLog{Timestamp: &ts, Level: "Critical (3)", Message: "T3 time-out"}))
	require.NoError(t, influx.Ingest(ctx, status.ModemLog{Level: "Notice (6)", Message: "boot"}))
	require.NoError(t, influx.Ingest(ctx, testDownstream))
	require.NoError(t, influx.Ingest(ctx, testUpstream))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 4)

	assert.True(t, strings.HasPrefix(lines[0], "log,"))
	assert.Contains(t, lines[0], `message="T3 time-out"`)
	assert.NotContains(t, lines[0], "time_established")

	assert.Contains(t, lines[1], "time_established=false")

	assert.True(t, strings.HasPrefix(lines[2], "downstream,"))
	assert.Contains(t, lines[2], "channel=5")
	assert.Contains(t, lines[2], "modulation=QAM256")
	assert.Contains(t, lines[2], "snr=38.1")
	assert.Contains(t, lines[2], "corrected=10i")

	assert.True(t, strings.HasPrefix(lines[3], "upstream,"))
	assert.Contains(t, lines[3], "channel_type=SC-QAM")
	// Readings are numeric fields, not the decimal text.
	assert.Regexp(t, `[ ,]power=44(,| |$)`, lines[3])
	assert.Regexp(t, `[ ,]frequency=16.4(,| |$)`, lines[3])
	assert.NotContains(t, lines[3], `power="44.0"`)
}

func TestNewInflux_RequiresConfig(t *testing.T) {
	_, err := NewInflux(InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
}

type doneToken struct {
	mqtt.Token
	err error
}

func (t doneToken) Wait() bool { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishedMessage struct {
	topic   string
	payload []byte
}

type fakeMQTTClient struct {
	mqtt.Client
	published []publishedMessage
}

func (c *fakeMQTTClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, publishedMessage{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func TestMQTT_Ingest(t *testing.T) {
	client := &fakeMQTTClient{}
	sink := NewMQTT(client, "", 0, false)
	ctx := context.Background()

	require.NoError(t, sink.Ingest(ctx, testDownstream))
	require.NoError(t, sink.Ingest(ctx, status.ModemLog{Level: "Notice (6)", Message: "boot"}))

	require.Len(t, client.published, 2)
	assert.Equal(t, "mb8600/downstream", client.published[0].topic)
	assert.Equal(t, "mb8600/log", client.published[1].topic)

	var channel map[string]interface{}
	require.NoError(t, json.Unmarshal(client.published[0].payload, &channel))
	assert.Equal(t, "38.1", channel["snr"])
	assert.Equal(t, "-1.2", channel["power"])
	assert.Equal(t, "591000000", channel["frequency"])

	var log map[string]interface{}
	require.NoError(t, json.Unmarshal(client.published[1].payload, &log))
	assert.Nil(t, log["timestamp"])
	assert.Equal(t, "boot", log["message"])
}
