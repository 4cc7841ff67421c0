//go:build ignore

package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/muurk/aseko-local/internal/capture"
	"github.com/muurk/aseko-local/internal/protocol"
)

type unitSummary struct {
	frames   int
	rejected map[string]int
	rotated  int
	last     *protocol.DeviceState
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: analyze-capture <frames.jsonl>")
		fmt.Println("Example: go run tools/analyze-capture.go ~/.local/share/aseko-local/captures/frames.jsonl")
		os.Exit(1)
	}

	filename := os.Args[1]
	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	units := map[uint32]*unitSummary{}
	decoder := protocol.NewDecoder()
	lines, bad := 0, 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lines++

		var rec capture.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			fmt.Printf("line %d: invalid JSON: %v\n", lines, err)
			bad++
			continue
		}
		raw, err := hex.DecodeString(rec.Hex)
		if err != nil {
			fmt.Printf("line %d: invalid hex: %v\n", lines, err)
			bad++
			continue
		}

		u := units[rec.Serial]
		if u == nil {
			u = &unitSummary{rejected: map[string]int{}}
			units[rec.Serial] = u
		}
		u.frames++

		frame, shift, err := protocol.Resync(raw)
		if err == nil {
			err = protocol.CheckPlausibility(frame)
		}
		if err != nil {
			kind, _ := protocol.KindOf(err)
			u.rejected[kind.String()]++
			continue
		}
		if shift != 0 {
			u.rotated++
		}
		if state, err := decoder.Decode(frame); err == nil {
			u.last = state
		} else {
			kind, _ := protocol.KindOf(err)
			u.rejected[kind.String()]++
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("=== Aseko Capture Analyzer ===\n")
	fmt.Printf("File: %s\n", filename)
	fmt.Printf("Records: %d (%d unreadable)\n\n", lines, bad)

	serials := make([]uint32, 0, len(units))
	for s := range units {
		serials = append(serials, s)
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })

	for _, serial := range serials {
		u := units[serial]
		fmt.Printf("Unit %d\n", serial)
		fmt.Printf("  Frames:  %d\n", u.frames)
		fmt.Printf("  Rotated: %d\n", u.rotated)
		if len(u.rejected) > 0 {
			kinds := make([]string, 0, len(u.rejected))
			for k := range u.rejected {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("  Rejected (%s): %d\n", k, u.rejected[k])
			}
		}
		if u.last != nil {
			fmt.Printf("  Last:    %s\n", u.last)
		}
		fmt.Println()
	}
}
