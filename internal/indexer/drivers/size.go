package drivers

import (
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`(?i)([\d.]+)\s*([KMGTPE]?i?B)`)

var binaryUnits = map[string]float64{
	"B":   1,
	"KB":  1 << 10,
	"MB":  1 << 20,
	"GB":  1 << 30,
	"TB":  1 << 40,
	"PB":  1 << 50,
	"KIB": 1 << 10,
	"MIB": 1 << 20,
	"GIB": 1 << 30,
	"TIB": 1 << 40,
	"PIB": 1 << 50,
}

// ParseSize parses a human-readable size string (e.g. "1.2 GB", "700MiB")
// into bytes, treating all units as binary multiples regardless of the
// "i" infix, since indexer sites use "GB" and "GiB" interchangeably for
// powers of 1024.
func ParseSize(s string) int64 {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	unit := strings.ToUpper(m[2])
	mult, ok := binaryUnits[unit]
	if !ok {
		mult = 1
	}
	return int64(value * mult)
}
