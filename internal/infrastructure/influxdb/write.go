package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteOvenMetric writes a single oven measurement to InfluxDB.
//
// This is the primary method for recording oven telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the oven (e.g., "oven-abc123")
//   - measurement: The metric name (e.g., "temperature_c", "probe_c")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteOvenMetric("oven-abc123", "temperature_c", 182.5)
//	client.WriteOvenMetric("oven-abc123", "steam_percentage", 100)
func (c *Client) WriteOvenMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"oven_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteOvenFlag writes a boolean oven state indicator.
//
// Used for door, water level, probe presence and similar on/off signals.
//
// Parameters:
//   - deviceID: Device identifier
//   - flag: Flag name (e.g., "door_open", "water_low", "cooking")
//   - value: Current flag state
func (c *Client) WriteOvenFlag(deviceID string, flag string, value bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"oven_flags",
		map[string]string{
			"device_id": deviceID,
			"flag":      flag,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCookEvent writes a recipe execution lifecycle event.
//
// Used for tracking recipe runs: start, stage transitions, completion.
//
// Parameters:
//   - deviceID: Device identifier
//   - executionID: Recipe execution identifier
//   - event: Event name (e.g., "started", "stage_advanced", "completed")
//   - stageIndex: Current stage index at the time of the event
func (c *Client) WriteCookEvent(deviceID, executionID, event string, stageIndex int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"cook_events",
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		map[string]interface{}{
			"execution_id": executionID,
			"stage_index":  stageIndex,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
