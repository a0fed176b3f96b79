// Package logparse turns raw access-log material (Apache combined lines,
// structured CSV logs, per-day spreadsheets and reference crawl exports)
// into structured records. Parse failures are per-line and never abort a
// file.
package logparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedLine is one structured access-log entry.
type ParsedLine struct {
	IP           string
	Timestamp    time.Time
	Method       string
	Path         string
	HTTPCode     int
	ResponseSize int64
	UserAgent    string
	// ResponseTime is the optional trailing latency field in microseconds;
	// nil when the log format does not carry it.
	ResponseTime *int64
	PageType     string
}

// ParseError marks a line that could not be parsed. Callers count it and
// move on; it is never fatal for the batch.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse line: %s", e.Reason)
}

// IsParseError reports whether err is a per-line parse failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// timestampLayout is the fixed Apache access-log timestamp format, without
// the timezone offset (which is split off before parsing).
const timestampLayout = "02/Jan/2006:15:04:05"

// apachePattern matches Apache combined log lines. It accepts any
// ident/user fields, a `-` response size, and an optional trailing
// response-time field in microseconds.
var apachePattern = regexp.MustCompile(
	`^(\S+)\s+\S+\s+\S+\s+` + // IP ident user
		`\[([^\]]+)\]\s+` + // [datetime +timezone]
		`"(\S+)\s+(\S+)\s+\S+"\s+` + // "METHOD path PROTOCOL"
		`(\d+)\s+` + // HTTP status code
		`(\d+|-)\s+` + // response size (or "-")
		`"[^"]*"\s+` + // referrer (ignored)
		`"([^"]*)"` + // user agent
		`(?:\s+(\d+))?`) // optional response time

// ParseLine parses one Apache combined log line. It returns a *ParseError
// for malformed lines; the caller decides whether the user agent is worth
// keeping.
func ParseLine(raw string) (ParsedLine, error) {
	m := apachePattern.FindStringSubmatch(raw)
	if m == nil {
		return ParsedLine{}, &ParseError{Reason: "line does not match combined log format"}
	}

	ts, err := time.Parse(timestampLayout, strings.Fields(m[2])[0])
	if err != nil {
		return ParsedLine{}, &ParseError{Reason: "unparseable timestamp " + m[2]}
	}

	code, err := strconv.Atoi(m[5])
	if err != nil {
		return ParsedLine{}, &ParseError{Reason: "non-numeric status " + m[5]}
	}

	var size int64
	if m[6] != "-" {
		size, err = strconv.ParseInt(m[6], 10, 64)
		if err != nil {
			return ParsedLine{}, &ParseError{Reason: "non-numeric size " + m[6]}
		}
	}

	line := ParsedLine{
		IP:           m[1],
		Timestamp:    ts,
		Method:       m[3],
		Path:         m[4],
		HTTPCode:     code,
		ResponseSize: size,
		UserAgent:    m[7],
		PageType:     ClassifyPageType(m[4]),
	}
	if m[8] != "" {
		if rt, err := strconv.ParseInt(m[8], 10, 64); err == nil {
			line.ResponseTime = &rt
		}
	}
	return line, nil
}
