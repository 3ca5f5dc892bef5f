// Package status decodes the ^-delimited status strings returned by Motorola
// MB8600 HNAP actions into channel and event log records.
//
// Records are joined with multi-character sentinels: "|+|" between channel
// table rows and "}-{" between event log entries. Fields within a record are
// separated by "^".
package status

// Record is implemented by every decoded value that can be handed to a sink.
type Record interface {
	// Measurement names the series the record belongs to.
	Measurement() string
}

var (
	_ Record = ModemLog{}
	_ Record = DownstreamChannel{}
	_ Record = UpstreamChannel{}
)
