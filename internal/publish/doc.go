// Package publish sends decoded pool telemetry to an MQTT broker using the
// Home Assistant discovery conventions.
//
// # Topics
//
//	<prefix>/<serial>/state          full snapshot JSON (retained by default)
//	<prefix>/<serial>/availability   "online" / "offline"
//	<prefix>/bridge/availability     bridge last will
//	<discovery>/<component>/aseko_<serial>/<field>/config
//
// Discovery configs are published the first time a unit is seen and again
// after every broker reconnect. Only values the unit actually reports get
// an entity, so a HOME unit never shows salinity.
package publish
