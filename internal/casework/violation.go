package casework

import (
	"fmt"
	"strconv"
)

var irregularOrdinals = [...]string{"", "1st", "2nd", "3rd", "4th", "5th", "6th", "7th", "8th", "9th", "10th"}

// Ordinal renders 1..10 from a fixed table and appends "th" to anything else.
func Ordinal(n int) string {
	if n >= 1 && n < len(irregularOrdinals) {
		return irregularOrdinals[n]
	}
	return strconv.Itoa(n) + "th"
}

// ViolationSummary is the repeat-violation projection for one employee and category.
type ViolationSummary struct {
	Count          int    `json:"count"`
	Ordinal        string `json:"ordinal"`
	IsRepeat       bool   `json:"is_repeat"`
	WarningMessage string `json:"warning_message,omitempty"`
}

// Summarize builds the projection from the sibling count and the position of
// the record among its siblings.
func Summarize(count, position int) ViolationSummary {
	s := ViolationSummary{
		Count:    count,
		Ordinal:  Ordinal(position),
		IsRepeat: count > 1,
	}
	if s.IsRepeat {
		s.WarningMessage = fmt.Sprintf("This is the %s violation for this employee in this category.", s.Ordinal)
	}
	return s
}
