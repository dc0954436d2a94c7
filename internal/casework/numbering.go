package casework

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	ReportPrefix = "DR"
	ActionPrefix = "DA"
)

var numberPattern = regexp.MustCompile(`^(DR|DA)-(\d{4})-(\d{4,})$`)

// FormatNumber renders PREFIX-YEAR-SEQ with the sequence zero-padded to four digits.
func FormatNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// ParseNumber splits a reference number produced by FormatNumber.
func ParseNumber(s string) (prefix string, year, seq int, err error) {
	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, 0, fmt.Errorf("invalid reference number %q", s)
	}
	year, _ = strconv.Atoi(m[2])
	seq, _ = strconv.Atoi(m[3])
	return m[1], year, seq, nil
}

// IsReferenceNumber reports whether s looks like a DR-/DA- number rather than an id.
func IsReferenceNumber(s string) bool {
	return numberPattern.MatchString(s)
}
