package protocol

import (
	"fmt"
	"strconv"
)

// NormalizeByte returns nil for the byte sentinel, else the value as int.
func NormalizeByte(b byte) *int {
	if b == UnspecifiedByte {
		return nil
	}
	v := int(b)
	return &v
}

// NormalizeWord returns nil for the word sentinel, else the value as int.
func NormalizeWord(w uint16) *int {
	if w == UnspecifiedWord {
		return nil
	}
	v := int(w)
	return &v
}

// NormalizeString returns nil when s is the decimal form of the byte
// sentinel ("255").
func NormalizeString(s string) *string {
	if s == strconv.Itoa(UnspecifiedByte) {
		return nil
	}
	return &s
}

// NormalizeValue maps the sentinel to nil for int and string values and
// returns anything else unchanged, keeping its type. Other types are a
// programming error and panic.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		if val == UnspecifiedByte {
			return nil
		}
		return val
	case string:
		if p := NormalizeString(val); p != nil {
			return *p
		}
		return nil
	default:
		panic(fmt.Sprintf("protocol: NormalizeValue called with unsupported type %T", v))
	}
}

func scaled(raw *int, divisor float64) *float64 {
	if raw == nil {
		return nil
	}
	v := float64(*raw) / divisor
	return &v
}

func multiplied(raw *int, factor int) *int {
	if raw == nil {
		return nil
	}
	v := *raw * factor
	return &v
}

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}
