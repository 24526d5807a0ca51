package metatag

import (
	"strconv"
	"strings"
)

// ParseDate reads a partial date in "YYYY", "YYYY-MM" or "YYYY-MM-DD" form.
// Malformed input yields an empty date rather than an error; tags are too
// messy to treat bad dates as fatal.
func ParseDate(value string) Date {
	value = strings.TrimSpace(value)
	if value == "" {
		return Date{}
	}

	parts := strings.SplitN(value, "-", 3)
	year, err := strconv.ParseInt(parts[0], 10, 16)
	if err != nil || year <= 0 {
		return Date{}
	}
	date := Date{Year: int16Ptr(int16(year))}

	if len(parts) < 2 {
		return date
	}
	month, err := strconv.ParseInt(parts[1], 10, 16)
	if err != nil || month < 1 || month > 12 {
		return date
	}
	date.Month = int16Ptr(int16(month))

	if len(parts) < 3 {
		return date
	}
	// Some taggers write "YYYY-MM-DDTHH:MM:SS".
	dayPart, _, _ := strings.Cut(parts[2], "T")
	day, err := strconv.ParseInt(dayPart, 10, 16)
	if err != nil || day < 1 || day > 31 {
		return date
	}
	date.Day = int16Ptr(int16(day))
	return date
}

func int16Ptr(v int16) *int16 { return &v }
