package logparse

import "strings"

// FileFormat is the detected shape of an uploaded log file.
type FileFormat string

const (
	FormatRawLog FileFormat = "raw_log"
	FormatCSVLog FileFormat = "csv_log"
)

// DetectFormat decides from the first line whether a file is a raw Apache
// log or a structured CSV export. A line that parses as a combined log line
// is always raw; otherwise it counts as CSV when it looks like a header row
// with at least three known column names.
func DetectFormat(firstLine string) FileFormat {
	if _, err := ParseLine(firstLine); err == nil {
		return FormatRawLog
	}

	sep := ","
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		sep = ";"
	}
	cells := strings.Split(firstLine, sep)
	if len(cells) < 3 {
		return FormatRawLog
	}

	known := 0
	for _, cell := range cells {
		name := strings.ToLower(strings.TrimSpace(strings.Trim(cell, `"`)))
		if isKnownCSVColumn(name) {
			known++
		}
	}
	if known >= 3 {
		return FormatCSVLog
	}
	return FormatRawLog
}

func isKnownCSVColumn(name string) bool {
	for _, aliases := range csvColumnAliases {
		for _, alias := range aliases {
			if name == alias {
				return true
			}
		}
	}
	return false
}
