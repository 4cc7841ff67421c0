// Package bridge assembles the aseko-server process from its parts.
//
// A Bridge owns one device listener (through a server.Registry) and fans
// every accepted frame out to the enabled consumers:
//   - devices.Registry, always on, the source of every other feature
//   - capture.Writer, raw frame logs
//   - mirror.Forwarder, a copy of the byte stream for the Aseko cloud
//   - stream.Hub, the WebSocket feed and REST snapshot
//   - publish.Publisher, MQTT with Home Assistant discovery
//   - store.Recorder, SQLite history
//
// Consumers are started before the listener so no frame is missed, and
// shut down after it so every accepted frame is drained.
package bridge
