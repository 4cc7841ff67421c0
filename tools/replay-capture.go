//go:build ignore

package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/muurk/aseko-local/internal/capture"
	"github.com/muurk/aseko-local/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:47524", "Bridge device listener")
	delay := flag.Duration("delay", time.Second, "Pause between frames")
	shift := flag.Int("shift", 0, "Rotate every frame left by this many bytes before sending")
	serial := flag.Uint("serial", 0, "Only replay frames from this unit (0 for all)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: replay-capture [flags] <frames.jsonl>")
		fmt.Println("Example: go run tools/replay-capture.go -delay 200ms -shift 8 captures/frames.jsonl")
		os.Exit(1)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		fmt.Printf("Error connecting to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	sent := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec capture.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if *serial != 0 && rec.Serial != uint32(*serial) {
			continue
		}
		data, err := hex.DecodeString(rec.Hex)
		if err != nil || len(data) != protocol.FrameSize {
			continue
		}
		if *shift != 0 {
			data = protocol.Rotate(data, *shift)
		}

		if _, err := conn.Write(data); err != nil {
			fmt.Printf("Write failed after %d frames: %v\n", sent, err)
			os.Exit(1)
		}
		sent++
		fmt.Printf("[%04d] serial=%d %s\n", sent, rec.Serial, rec.Hex[:16])
		time.Sleep(*delay)
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Replayed %d frames to %s\n", sent, *addr)
}
