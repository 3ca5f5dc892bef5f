package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/markuslindenberg/mb8600_exporter/status"
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Influx writes records synchronously to an InfluxDB 2 bucket.
type Influx struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking

	// Now stamps channel records and logs without a timestamp.
	Now func() time.Time
}

func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influxdb: url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		Now:    time.Now,
	}, nil
}

func (i *Influx) Ingest(ctx context.Context, record status.Record) error {
	point, err := i.point(record)
	if err != nil {
		return err
	}
	return i.writer.WritePoint(ctx, point)
}

func (i *Influx) Close() { i.client.Close() }

// Decimal readings become float fields so Flux can aggregate them. Trailing
// zeros are lost, 44.0 is written as 44; the MQTT sink keeps the exact text.
func (i *Influx) point(record status.Record) (*write.Point, error) {
	now := i.Now()
	switch r := record.(type) {
	case status.ModemLog:
		p := influxdb2.NewPointWithMeasurement(r.Measurement()).
			AddTag("level", r.Level).
			AddField("message", r.Message)
		if r.Timestamp != nil {
			return p.SetTime(*r.Timestamp), nil
		}
		return p.AddTag("time_established", "false").SetTime(now), nil
	case status.DownstreamChannel:
		return influxdb2.NewPointWithMeasurement(r.Measurement()).
			SetTime(now).
			AddTag("channel", strconv.Itoa(r.Channel)).
			AddTag("channel_id", strconv.Itoa(r.ChannelID)).
			AddTag("lock_status", r.LockStatus).
			AddTag("modulation", r.Modulation).
			AddField("frequency", r.Frequency.InexactFloat64()).
			AddField("power", r.Power.InexactFloat64()).
			AddField("snr", r.SNR.InexactFloat64()).
			AddField("corrected", r.Corrected).
			AddField("uncorrected", r.Uncorrected), nil
	case status.UpstreamChannel:
		return influxdb2.NewPointWithMeasurement(r.Measurement()).
			SetTime(now).
			AddTag("channel", strconv.Itoa(r.Channel)).
			AddTag("channel_id", strconv.Itoa(r.ChannelID)).
			AddTag("lock_status", r.LockStatus).
			AddTag("channel_type", r.ChannelType).
			AddField("symbol_rate", r.SymbolRate.InexactFloat64()).
			AddField("frequency", r.Frequency.InexactFloat64()).
			AddField("power", r.Power.InexactFloat64()), nil
	default:
		return nil, fmt.Errorf("influxdb: unsupported record %T", record)
	}
}
