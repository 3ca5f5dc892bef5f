package status

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const channelSeparator = "|+|"

var downstreamSchema = Schema{
	{"channel", Integer},
	{"lock_status", String},
	{"modulation", String},
	{"channel_id", Integer},
	{"frequency", Decimal},
	{"power", Decimal},
	{"snr", Decimal},
	{"corrected", Integer},
	{"uncorrected", Integer},
}

var upstreamSchema = Schema{
	{"channel", Integer},
	{"lock_status", String},
	{"channel_type", String},
	{"channel_id", Integer},
	{"symbol_rate", Decimal},
	{"frequency", Decimal},
	{"power", Decimal},
}

// DownstreamChannel is one row of the modem's downstream bonding table.
type DownstreamChannel struct {
	Channel     int             `json:"channel"`
	LockStatus  string          `json:"lock_status"`
	Modulation  string          `json:"modulation"`
	ChannelID   int             `json:"channel_id"`
	Frequency   decimal.Decimal `json:"frequency"`
	Power       decimal.Decimal `json:"power"`
	SNR         decimal.Decimal `json:"snr"`
	Corrected   int64           `json:"corrected"`
	Uncorrected int64           `json:"uncorrected"`
}

func (DownstreamChannel) Measurement() string { return "downstream" }

// UpstreamChannel is one row of the modem's upstream bonding table.
type UpstreamChannel struct {
	Channel     int             `json:"channel"`
	LockStatus  string          `json:"lock_status"`
	ChannelType string          `json:"channel_type"`
	ChannelID   int             `json:"channel_id"`
	SymbolRate  decimal.Decimal `json:"symbol_rate"`
	Frequency   decimal.Decimal `json:"frequency"`
	Power       decimal.Decimal `json:"power"`
}

func (UpstreamChannel) Measurement() string { return "upstream" }

func ParseDownstreamChannel(raw string) (DownstreamChannel, error) {
	f, err := Decode(trimRecord(raw), downstreamSchema)
	if err != nil {
		return DownstreamChannel{}, err
	}
	return DownstreamChannel{
		Channel:     int(f.Int(0)),
		LockStatus:  f.Text(1),
		Modulation:  f.Text(2),
		ChannelID:   int(f.Int(3)),
		Frequency:   f.Decimal(4),
		Power:       f.Decimal(5),
		SNR:         f.Decimal(6),
		Corrected:   f.Int(7),
		Uncorrected: f.Int(8),
	}, nil
}

func ParseUpstreamChannel(raw string) (UpstreamChannel, error) {
	f, err := Decode(trimRecord(raw), upstreamSchema)
	if err != nil {
		return UpstreamChannel{}, err
	}
	return UpstreamChannel{
		Channel:     int(f.Int(0)),
		LockStatus:  f.Text(1),
		ChannelType: f.Text(2),
		ChannelID:   int(f.Int(3)),
		SymbolRate:  f.Decimal(4),
		Frequency:   f.Decimal(5),
		Power:       f.Decimal(6),
	}, nil
}

// DownstreamTable is the raw MotoConnDownstreamChannel value. Every call to
// Channels parses the string again, so it can be consumed any number of times.
type DownstreamTable string

func (t DownstreamTable) Len() int { return countRecords(string(t), channelSeparator) }

func (t DownstreamTable) Channels() ([]DownstreamChannel, error) {
	records := splitRecords(string(t), channelSeparator)
	channels := make([]DownstreamChannel, 0, len(records))
	for _, record := range records {
		channel, err := ParseDownstreamChannel(record)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, nil
}

// UpstreamTable is the raw MotoConnUpstreamChannel value.
type UpstreamTable string

func (t UpstreamTable) Len() int { return countRecords(string(t), channelSeparator) }

func (t UpstreamTable) Channels() ([]UpstreamChannel, error) {
	records := splitRecords(string(t), channelSeparator)
	channels := make([]UpstreamChannel, 0, len(records))
	for _, record := range records {
		channel, err := ParseUpstreamChannel(record)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, nil
}

func SortDownstream(channels []DownstreamChannel) {
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Channel < channels[j].Channel })
}

func SortUpstream(channels []UpstreamChannel) {
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Channel < channels[j].Channel })
}

// splitRecords returns no records for a blank table.
func splitRecords(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, sep)
}

func countRecords(s, sep string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return strings.Count(s, sep) + 1
}

// trimRecord drops the padding the modem leaves around records.
func trimRecord(raw string) string {
	return strings.Trim(raw, "\"^ \t\r\n")
}
