package hnap

import (
	"context"
	"time"

	"github.com/markuslindenberg/mb8600_exporter/status"
)

// Snapshot holds the raw status tables fetched in one request. Decoding is
// left to the caller so a malformed table does not hide the others.
type Snapshot struct {
	Logs       status.LogList
	Downstream status.DownstreamTable
	Upstream   status.UpstreamTable
}

// Status fetches the event log and both channel tables in a single batch.
func (c *Client) Status(ctx context.Context) (Snapshot, error) {
	batch, err := c.PerformBatch(ctx, ActionStatusLog, ActionDownstreamChannelInfo, ActionUpstreamChannelInfo)
	if err != nil {
		return Snapshot{}, err
	}
	return batch.Snapshot()
}

// Snapshot extracts the status tables from a batch that requested the log
// and both channel actions, such as a saved raw dump.
func (b BatchResponse) Snapshot() (Snapshot, error) {
	var (
		logs       StatusLogResponse
		downstream DownstreamChannelInfoResponse
		upstream   UpstreamChannelInfoResponse
	)
	if err := b.Decode(ActionStatusLog, &logs); err != nil {
		return Snapshot{}, err
	}
	if err := b.Decode(ActionDownstreamChannelInfo, &downstream); err != nil {
		return Snapshot{}, err
	}
	if err := b.Decode(ActionUpstreamChannelInfo, &upstream); err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Logs:       status.LogList(logs.MotoStatusLogList),
		Downstream: status.DownstreamTable(downstream.MotoConnDownstreamChannel),
		Upstream:   status.UpstreamTable(upstream.MotoConnUpstreamChannel),
	}, nil
}

// Logs fetches and decodes the event log, interpreting timestamps in the
// configured location.
func (c *Client) Logs(ctx context.Context) ([]status.ModemLog, error) {
	var resp StatusLogResponse
	if err := c.performInto(ctx, ActionStatusLog, &resp); err != nil {
		return nil, err
	}
	return status.LogList(resp.MotoStatusLogList).Logs(c.location)
}

func (c *Client) DownstreamChannels(ctx context.Context) ([]status.DownstreamChannel, error) {
	var resp DownstreamChannelInfoResponse
	if err := c.performInto(ctx, ActionDownstreamChannelInfo, &resp); err != nil {
		return nil, err
	}
	return status.DownstreamTable(resp.MotoConnDownstreamChannel).Channels()
}

func (c *Client) UpstreamChannels(ctx context.Context) ([]status.UpstreamChannel, error) {
	var resp UpstreamChannelInfoResponse
	if err := c.performInto(ctx, ActionUpstreamChannelInfo, &resp); err != nil {
		return nil, err
	}
	return status.UpstreamTable(resp.MotoConnUpstreamChannel).Channels()
}

// Location returns the time zone used for event log timestamps.
func (c *Client) Location() *time.Location { return c.location }
