package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/markuslindenberg/mb8600_exporter/hnap"
	"github.com/markuslindenberg/mb8600_exporter/sink"
	"github.com/markuslindenberg/mb8600_exporter/status"
)

type modemConfig struct {
	hostname string
	url      string
	username string
	password string
	location *time.Location
	insecure bool
	timeout  time.Duration
}

func (m modemConfig) roundTripper() http.RoundTripper {
	return hnap.NewTransport(m.insecure)
}

func (m modemConfig) pollTimeout() time.Duration {
	if m.timeout <= 0 {
		return time.Minute
	}
	return m.timeout
}

// newClient returns a client with a fresh cookie jar so nothing carries over
// from an earlier poll.
func (m modemConfig) newClient(rt http.RoundTripper) (*hnap.Client, error) {
	httpClient, err := hnap.NewHTTPClient(rt, m.timeout)
	if err != nil {
		return nil, err
	}
	return hnap.NewClient(hnap.Config{
		Hostname:   m.hostname,
		URL:        m.url,
		Username:   m.username,
		Password:   m.password,
		Location:   m.location,
		HTTPClient: httpClient,
	})
}

// poll logs in and fetches the status tables in one batch.
func poll(ctx context.Context, client *hnap.Client) (hnap.Snapshot, error) {
	if _, err := client.Login(ctx); err != nil {
		return hnap.Snapshot{}, fmt.Errorf("login failed: %w", err)
	}
	snap, err := client.Status(ctx)
	if err != nil {
		return hnap.Snapshot{}, fmt.Errorf("fetching status failed: %w", err)
	}
	return snap, nil
}

type tableError struct {
	table string
	err   error
}

func (e *tableError) Error() string { return fmt.Sprintf("decoding %s table: %v", e.table, e.err) }

func (e *tableError) Unwrap() error { return e.err }

// decode decodes each table on its own. A table that fails to decode is left
// empty and reported, the others are still returned.
func decode(raw hnap.Snapshot, loc *time.Location) (sink.Snapshot, []*tableError) {
	var (
		snap sink.Snapshot
		errs []*tableError
	)

	logs, err := raw.Logs.Logs(loc)
	if err != nil {
		errs = append(errs, &tableError{table: "log", err: err})
	}
	snap.Logs = status.DedupeLogs(logs)
	status.SortLogs(snap.Logs)

	if snap.Downstream, err = raw.Downstream.Channels(); err != nil {
		errs = append(errs, &tableError{table: "downstream", err: err})
	}
	status.SortDownstream(snap.Downstream)

	if snap.Upstream, err = raw.Upstream.Channels(); err != nil {
		errs = append(errs, &tableError{table: "upstream", err: err})
	}
	status.SortUpstream(snap.Upstream)

	return snap, errs
}
