package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBulbConnectivity records one bulb's connected state as seen by a
// rescan.
//
// The write is non-blocking; data is batched and sent asynchronously.
// No-op when the client is nil or disconnected.
//
// Parameters:
//   - bulb: Bulb name (e.g., "desk-lamp")
//   - deviceID: The controller currently serving the bulb
//   - connected: Whether the controller holds a live link to the bulb
func (c *Client) WriteBulbConnectivity(bulb string, deviceID string, connected bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bulb_connectivity",
		map[string]string{
			"bulb":   bulb,
			"device": deviceID,
		},
		map[string]interface{}{
			"connected": boolGauge(connected),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceReachability records whether a controller answered a rescan,
// and with how many bulbs.
//
// Parameters:
//   - deviceID: Controller identifier
//   - address: Transport address at rescan time
//   - online: Whether the catalog query succeeded
//   - bulbs: Number of bulbs reported (0 when offline)
func (c *Client) WriteDeviceReachability(deviceID string, address string, online bool, bulbs int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_reachability",
		map[string]string{
			"device":  deviceID,
			"address": address,
		},
		map[string]interface{}{
			"online": boolGauge(online),
			"bulbs":  bulbs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// boolGauge encodes a bool as 0/1 so it can be graphed and aggregated.
func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
