package render

import (
	"strings"
	"time"
)

// ScreamIt upper-cases text. Characters without case pass through unchanged.
func ScreamIt(text string) string {
	return strings.ToUpper(text)
}

// CurrentYear returns the calendar year reported by now.
func CurrentYear(now func() time.Time) int {
	return now().Year()
}
