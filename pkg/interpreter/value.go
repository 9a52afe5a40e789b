package interpreter

import (
	"math"
	"strconv"
)

// Locals carry no type tag: the generator guarantees every slot is only read
// and written with the opcodes of its static type, so a slot holds the raw
// bits of an int64, a float64 or a string constant id.

func intSlot(v int64) uint64 { return uint64(v) }

func slotInt(s uint64) int64 { return int64(s) }

func doubleSlot(v float64) uint64 { return math.Float64bits(v) }

func slotDouble(s uint64) float64 { return math.Float64frombits(s) }

func stringSlot(id uint16) uint64 { return uint64(id) }

func slotString(s uint64) uint16 { return uint16(s) }

// FormatInt renders an integer the way print does.
func FormatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// FormatDouble renders a double the way print does: the shortest
// representation that reads back to the same value.
func FormatDouble(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
