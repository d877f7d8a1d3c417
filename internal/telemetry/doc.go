// Package telemetry records oven state changes and recipe execution
// events to the time-series store.
//
// A Recorder watches one subscription per attached device and writes a
// point for every field named in a change set, so the series only
// advances when the value actually moved. Recipe lifecycle transitions
// are recorded as cook events keyed by execution id.
//
// All writes go through a narrow Writer interface satisfied by the
// InfluxDB client; when the store is unreachable the client drops
// points rather than blocking the state pipeline.
package telemetry
