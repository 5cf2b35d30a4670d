package recipe

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVersion returns the number in a "vNNN" version string.
func ParseVersion(v string) (int, error) {
	if len(v) < 4 || v[0] != 'v' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	digits := v[1:]
	if strings.TrimLeft(digits, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, v, err)
	}
	return n, nil
}

// FormatVersion renders n as "v" plus at least three digits.
func FormatVersion(n int) string {
	return fmt.Sprintf("v%03d", n)
}

// NextVersion returns the version after v: "v001" becomes "v002", "v999" becomes "v1000".
func NextVersion(v string) (string, error) {
	n, err := ParseVersion(v)
	if err != nil {
		return "", err
	}
	return FormatVersion(n + 1), nil
}
