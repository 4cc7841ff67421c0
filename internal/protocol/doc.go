// Package protocol implements the Aseko pool controller telemetry protocol.
//
// Aseko units (ASIN AQUA Home, NET, Profi and Salt) open a plain TCP
// connection to a configured server and push one fixed-size binary frame
// every few seconds. This package extracts frames from the byte stream,
// realigns them when the stream has slipped, rejects implausible data and
// decodes the fixed-offset fields into an immutable DeviceState.
//
// # Frame Layout
//
// A frame is 120 bytes made of three 40-byte sub-blocks. Every sub-block
// starts with the 4-byte serial number and carries a block marker at its
// byte 5:
//   - Bytes 0-39: block 1 (marker 0x01 at byte 5), measurements
//   - Bytes 40-79: block 3 (marker 0x03 at byte 45), setpoints and schedule
//   - Bytes 80-119: block 2 (marker 0x02 at byte 85), dosing configuration
//
// Multi-byte values are big-endian. 0xFF (0xFFFF for words) means "not
// specified" and decodes to nil.
//
// # Device Types
//
// The device type is not transmitted as such. It is inferred from the unit
// info byte (offset 4), whose low nibble also holds the probe-missing bits:
//   - 0x08 exactly: PROFI
//   - 0x0C-0x0F: SALT
//   - 0x00-0x03: HOME
//   - 0x09-0x0B: NET
//
// The checks run in that order. PROFI's code also matches the NET mask, so
// reordering them misclassifies real units.
//
// # Usage Example
//
//	ex := protocol.NewExtractor()
//	for _, candidate := range ex.Feed(chunk) {
//	    frame, shift, err := protocol.Resync(candidate)
//	    if err != nil {
//	        return err // stream is unusable, reconnect
//	    }
//	    if err := protocol.CheckPlausibility(frame); err != nil {
//	        continue
//	    }
//	    state, err := protocol.Decode(frame)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(shift, state)
//	}
//
// # Known Ambiguities
//
// max_filling_time is read as the word at 94-95 while byte 95 is also the
// chlorine flow rate. Both interpretations are kept. Likewise bytes 20-21
// are salinity and electrolyzer power on salt units and cl_free_mv on
// HOME/NET units with a free chlorine probe.
//
// # Thread Safety
//
// Decode, Resync and CheckPlausibility are stateless and safe for
// concurrent use. An Extractor belongs to one connection.
package protocol
