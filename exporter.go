package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/log"

	"github.com/markuslindenberg/mb8600_exporter/hnap"
)

var (
	downstreamLabelNames = []string{"channel", "channel_id", "modulation"}
	upstreamLabelNames   = []string{"channel", "channel_id", "channel_type"}
)

func newChannelMetric(subsystemName, metricName, docString string, labelNames []string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystemName, metricName), docString, labelNames, nil)
}

var (
	targetUpMetric = prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "up"), "Was the last scrape of the MB8600 succesful.", nil, nil)

	downstreamLockedMetric      = newChannelMetric("downstream", "locked", "Downstream Lock Status", downstreamLabelNames)
	downstreamFrequencyMetric   = newChannelMetric("downstream", "center_frequency_hz", "Downstream Center Frequency", downstreamLabelNames)
	downstreamPowerMetric       = newChannelMetric("downstream", "receive_level_dbmv", "Downstream Receive Level", downstreamLabelNames)
	downstreamSNRMetric         = newChannelMetric("downstream", "snr_db", "Downstream SNR", downstreamLabelNames)
	downstreamCorrectedMetric   = newChannelMetric("downstream", "codewords_corrected_total", "Downstream Corrected Codewords", downstreamLabelNames)
	downstreamUncorrectedMetric = newChannelMetric("downstream", "codewords_uncorrectable_total", "Downstream Uncorrectable Codewords", downstreamLabelNames)

	upstreamLockedMetric     = newChannelMetric("upstream", "locked", "Upstream Lock Status", upstreamLabelNames)
	upstreamSymbolRateMetric = newChannelMetric("upstream", "symbol_rate_ksps", "Upstream Symbol Rate", upstreamLabelNames)
	upstreamFrequencyMetric  = newChannelMetric("upstream", "center_frequency_mhz", "Upstream Center Frequency", upstreamLabelNames)
	upstreamPowerMetric      = newChannelMetric("upstream", "transmit_level_dbmv", "Upstream Transmit Level", upstreamLabelNames)

	logEntriesMetric = prometheus.NewDesc(prometheus.BuildFQName(namespace, "log", "entries"), "Number of distinct event log entries by level.", []string{"level"}, nil)
	logLatestMetric  = prometheus.NewDesc(prometheus.BuildFQName(namespace, "log", "latest_timestamp_seconds"), "Timestamp of the newest event log entry.", nil, nil)

	statusMetrics = []*prometheus.Desc{
		downstreamLockedMetric, downstreamFrequencyMetric, downstreamPowerMetric, downstreamSNRMetric,
		downstreamCorrectedMetric, downstreamUncorrectedMetric,
		upstreamLockedMetric, upstreamSymbolRateMetric, upstreamFrequencyMetric, upstreamPowerMetric,
		logEntriesMetric, logLatestMetric,
	}
)

type Exporter struct {
	modem     modemConfig
	transport http.RoundTripper
	mutex     sync.Mutex

	totalScrapes          prometheus.Counter
	loginFailures         prometheus.Counter
	parseFailures         *prometheus.CounterVec
	clientRequestCount    *prometheus.CounterVec
	clientRequestDuration *prometheus.HistogramVec
}

func NewExporter(modem modemConfig) (*Exporter, error) {
	clientRequestCount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exporter_client_requests_total",
		Help:      "HNAP requests to MB8600",
	}, []string{"code", "method"})

	clientRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "exporter_client_request_duration_seconds",
		Help:      "Histogram of MB8600 HNAP request latencies.",
	}, []string{"code", "method"})

	transport := promhttp.InstrumentRoundTripperCounter(clientRequestCount,
		promhttp.InstrumentRoundTripperDuration(clientRequestDuration, modem.roundTripper()))

	return &Exporter{
		modem:     modem,
		transport: transport,
		totalScrapes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exporter_scrapes_total",
			Help:      "Current total MB8600 scrapes.",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exporter_login_failures_total",
			Help:      "Number of rejected HNAP logins.",
		}),
		parseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exporter_parse_errors_total",
			Help:      "Number of errors while decoding status tables.",
		}, []string{"table"}),
		clientRequestCount:    clientRequestCount,
		clientRequestDuration: clientRequestDuration,
	}, nil
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range statusMetrics {
		ch <- m
	}

	ch <- targetUpMetric
	ch <- e.totalScrapes.Desc()
	ch <- e.loginFailures.Desc()
	e.parseFailures.Describe(ch)
	e.clientRequestCount.Describe(ch)
	e.clientRequestDuration.Describe(ch)
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	up := e.scrape(ch)
	ch <- prometheus.MustNewConstMetric(targetUpMetric, prometheus.GaugeValue, up)

	ch <- e.totalScrapes
	ch <- e.loginFailures
	e.parseFailures.Collect(ch)
	e.clientRequestCount.Collect(ch)
	e.clientRequestDuration.Collect(ch)
}

func (e *Exporter) scrape(ch chan<- prometheus.Metric) (up float64) {
	e.totalScrapes.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), e.modem.pollTimeout())
	defer cancel()

	client, err := e.modem.newClient(e.transport)
	if err != nil {
		log.Errorln(err)
		return 0
	}
	raw, err := poll(ctx, client)
	if err != nil {
		if errors.Is(err, hnap.ErrAuthenticationFailed) {
			e.loginFailures.Inc()
		}
		log.Errorln(err)
		return 0
	}

	snap, errs := decode(raw, client.Location())
	for _, err := range errs {
		log.Errorln(err)
		e.parseFailures.WithLabelValues(err.table).Inc()
	}

	for _, c := range snap.Downstream {
		labelValues := []string{fmt.Sprintf("%02d", c.Channel), fmt.Sprint(c.ChannelID), c.Modulation}
		ch <- prometheus.MustNewConstMetric(downstreamLockedMetric, prometheus.GaugeValue, lockedValue(c.LockStatus), labelValues...)
		ch <- prometheus.MustNewConstMetric(downstreamFrequencyMetric, prometheus.GaugeValue, c.Frequency.InexactFloat64(), labelValues...)
		ch <- prometheus.MustNewConstMetric(downstreamPowerMetric, prometheus.GaugeValue, c.Power.InexactFloat64(), labelValues...)
		ch <- prometheus.MustNewConstMetric(downstreamSNRMetric, prometheus.GaugeValue, c.SNR.InexactFloat64(), labelValues...)
		ch <- prometheus.MustNewConstMetric(downstreamCorrectedMetric, prometheus.CounterValue, float64(c.Corrected), labelValues...)
		ch <- prometheus.MustNewConstMetric(downstreamUncorrectedMetric, prometheus.CounterValue, float64(c.Uncorrected), labelValues...)
	}

	for _, c := range snap.Upstream {
		labelValues := []string{fmt.Sprintf("%02d", c.Channel), fmt.Sprint(c.ChannelID), c.ChannelType}
		ch <- prometheus.MustNewConstMetric(upstreamLockedMetric, prometheus.GaugeValue, lockedValue(c.LockStatus), labelValues...)
		ch <- prometheus.MustNewConstMetric(upstreamSymbolRateMetric, prometheus.GaugeValue, c.SymbolRate.InexactFloat64(), labelValues...)
		ch <- prometheus.MustNewConstMetric(upstreamFrequencyMetric, prometheus.GaugeValue, c.Frequency.InexactFloat64(), labelValues...)
		ch <- prometheus.MustNewConstMetric(upstreamPowerMetric, prometheus.GaugeValue, c.Power.InexactFloat64(), labelValues...)
	}

	levels := map[string]int{}
	var latest *time.Time
	for _, l := range snap.Logs {
		levels[l.Level]++
		if l.Timestamp != nil && (latest == nil || l.Timestamp.After(*latest)) {
			latest = l.Timestamp
		}
	}
	for level, count := range levels {
		ch <- prometheus.MustNewConstMetric(logEntriesMetric, prometheus.GaugeValue, float64(count), level)
	}
	if latest != nil {
		ch <- prometheus.MustNewConstMetric(logLatestMetric, prometheus.GaugeValue, float64(latest.Unix()))
	}

	return 1
}

func lockedValue(lockStatus string) float64 {
	if lockStatus == "Locked" {
		return 1
	}
	return 0
}
