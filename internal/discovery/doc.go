// Package discovery finds aseko-local bridges on the local network.
//
// A running bridge announces its stream endpoint as an "_aseko-bridge._tcp"
// mDNS service with TXT records describing the WebSocket path, the REST
// path and the port pool units report to. The terminal monitor browses for
// that service so it can connect without being told an address.
//
// # Usage Example
//
//	ann, err := discovery.Announce("aseko-local", 8080, discovery.TXTRecords(47524, "/ws"))
//	if err != nil {
//	    return err
//	}
//	defer ann.Shutdown()
//
//	bridge, err := discovery.NewScanner().WaitForBridge(ctx)
//	if err == nil {
//	    fmt.Println(bridge.StreamURL())
//	}
package discovery
