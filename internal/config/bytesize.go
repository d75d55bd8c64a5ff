package config

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// ParseByteSize parses sizes such as "12MiB", "3MB", "512KiB" or "1048576".
// Results that do not fit a positive int64 are rejected.
func ParseByteSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be at least one byte: %q", s)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size too large: %q", s)
	}
	return int64(n), nil
}

// FormatByteSize renders n using binary units, e.g. "12 MiB".
func FormatByteSize(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
