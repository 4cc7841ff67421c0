// Package devices keeps the latest decoded snapshot of every pool unit the
// bridge has heard from and fans updates out to the publishers (MQTT,
// history, live stream).
package devices
