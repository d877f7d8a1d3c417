// Package bridge exposes the oven runtime over MQTT.
//
// State change sets are published retained to per-device state topics,
// so late subscribers immediately see the current snapshot. Command
// topics accept JSON action payloads (start_cook, stop_cook, set_probe,
// set_temperature_unit, set_lamp, start_recipe, cancel_recipe) and each
// command's outcome is published to the device's result topic. Recipe
// execution transitions go to cook event topics and device presence to
// availability topics.
//
// The bridge is an adapter only: every side effect is a call into the
// cook manager, and all validation stays in the core.
package bridge
