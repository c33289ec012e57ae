package csvlog

import (
	"strconv"
	"time"
)

const timestampLayout = time.RFC3339Nano

func itoa(v int) string {
	return strconv.Itoa(v)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// numOrEmpty renders v, or an empty cell when the sample was absent —
// the unified table's numeric columns are populated only for the
// measurands a MeterValues event actually carried, per spec.md §4.4.
func numOrEmpty(v float64, present bool) string {
	if !present {
		return ""
	}
	return ftoa(v)
}
