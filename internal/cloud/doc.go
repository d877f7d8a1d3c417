// Package cloud maintains the persistent session to the vendor cloud.
//
// A single authenticated WebSocket connection carries traffic for every
// oven on the account, multiplexed by device id. Inbound frames are
// device state pushes and device list events; outbound frames are
// commands, each correlated to an acknowledgement by request id.
//
// The session owns the connection exclusively. All writes funnel
// through Send so command frames are never interleaved, and a single
// reader goroutine processes inbound frames in arrival order. On
// connection loss the session fails outstanding commands, notifies the
// disconnect callback, and reconnects with exponential backoff;
// registered callbacks survive reconnection.
package cloud
