// Package sink forwards decoded modem records to external stores.
package sink

import (
	"context"
	"fmt"

	"github.com/markuslindenberg/mb8600_exporter/status"
)

// Sink accepts decoded records one at a time.
type Sink interface {
	Ingest(ctx context.Context, record status.Record) error
}

// Multi ingests every record into each of its sinks in turn and stops at the
// first error.
type Multi []Sink

func (m Multi) Ingest(ctx context.Context, record status.Record) error {
	for _, s := range m {
		if err := s.Ingest(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every record.
type Discard struct{}

func (Discard) Ingest(context.Context, status.Record) error { return nil }

// Snapshot is the decoded result of one poll.
type Snapshot struct {
	Logs       []status.ModemLog
	Downstream []status.DownstreamChannel
	Upstream   []status.UpstreamChannel
}

// IngestSnapshot feeds logs, downstream and upstream channels to s in that
// order.
func IngestSnapshot(ctx context.Context, s Sink, snap Snapshot) error {
	for _, l := range snap.Logs {
		if err := s.Ingest(ctx, l); err != nil {
			return fmt.Errorf("ingesting log: %w", err)
		}
	}
	for _, c := range snap.Downstream {
		if err := s.Ingest(ctx, c); err != nil {
			return fmt.Errorf("ingesting downstream channel %d: %w", c.Channel, err)
		}
	}
	for _, c := range snap.Upstream {
		if err := s.Ingest(ctx, c); err != nil {
			return fmt.Errorf("ingesting upstream channel %d: %w", c.Channel, err)
		}
	}
	return nil
}
