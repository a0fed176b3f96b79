package logparse

import (
	"strconv"
	"strings"
	"time"
)

// csvColumnAliases maps logical fields to the header names seen in exported
// server logs. Matching is case-insensitive on trimmed headers.
var csvColumnAliases = map[string][]string{
	"ip":         {"ip", "client_ip", "remote_addr", "remote_host"},
	"datetime":   {"datetime", "date_time", "timestamp", "time", "date"},
	"url":        {"url", "request_uri", "uri", "path", "request_url", "request"},
	"method":     {"method", "request_method", "http_method"},
	"status":     {"status", "status_code", "http_status", "response_code", "code"},
	"size":       {"size", "bytes", "body_bytes_sent", "response_size", "bytes_sent"},
	"user_agent": {"user_agent", "useragent", "http_user_agent", "ua"},
	"referer":    {"referer", "referrer", "http_referer"},
	"host":       {"host", "server_name", "hostname", "vhost"},
	"protocol":   {"protocol", "http_protocol", "server_protocol"},
}

var csvTimestampLayouts = []string{
	"02/Jan/2006:15:04:05 -0700",
	"02/Jan/2006:15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006 15:04:05",
}

// CSVColumnMap resolves the logical field -> header index mapping for a CSV
// log file. It returns false when the header lacks the minimum columns
// (user agent and URL) needed to import anything.
func CSVColumnMap(header []string) (map[string]int, bool) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}
	colMap := make(map[string]int)
	for field, aliases := range csvColumnAliases {
		for _, alias := range aliases {
			if idx, ok := byName[alias]; ok {
				colMap[field] = idx
				break
			}
		}
	}
	_, hasUA := colMap["user_agent"]
	_, hasURL := colMap["url"]
	return colMap, hasUA && hasURL
}

// ParseCSVRow parses one data row of a structured CSV log. It recovers from
// the shifted-column case where a merged "status size" field pushes the user
// agent into the referer column.
func ParseCSVRow(row []string, colMap map[string]int) (ParsedLine, error) {
	field := func(name string) string {
		idx, ok := colMap[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	ua := field("user_agent")
	if ua == "" {
		// A merged status+size column leaves the row one value short and the
		// user agent lands under the referer header.
		candidate := field("referer")
		if candidate != "" && looksLikeUserAgent(candidate) {
			ua = candidate
		}
	}
	if ua == "" {
		return ParsedLine{}, &ParseError{Reason: "missing user agent"}
	}

	url := field("url")
	if url == "" {
		return ParsedLine{}, &ParseError{Reason: "missing url"}
	}

	rawTS := field("datetime")
	if rawTS == "" {
		return ParsedLine{}, &ParseError{Reason: "missing timestamp"}
	}
	ts, ok := parseCSVTimestamp(rawTS)
	if !ok {
		return ParsedLine{}, &ParseError{Reason: "unparseable timestamp " + rawTS}
	}

	code, size := parseStatusSize(field("status"))
	if rawSize := field("size"); rawSize != "" {
		if v, err := strconv.ParseInt(rawSize, 10, 64); err == nil {
			size = v
		}
	}

	return ParsedLine{
		IP:           field("ip"),
		Timestamp:    ts,
		Method:       field("method"),
		Path:         url,
		HTTPCode:     code,
		ResponseSize: size,
		UserAgent:    ua,
		PageType:     ClassifyPageType(url),
	}, nil
}

func parseCSVTimestamp(raw string) (time.Time, bool) {
	for _, layout := range csvTimestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			// Log timestamps are compared as naive local times.
			if ts.Location() != time.UTC {
				ts = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)
			}
			return ts, true
		}
	}
	// Last resort: strip a trailing timezone offset.
	if fields := strings.Fields(raw); len(fields) > 0 {
		if ts, err := time.Parse(timestampLayout, fields[0]); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// parseStatusSize handles a status field that may carry the response size
// merged in, e.g. " 200 541 ".
func parseStatusSize(raw string) (int, int64) {
	parts := strings.Fields(raw)
	var code int
	var size int64
	if len(parts) >= 1 {
		code, _ = strconv.Atoi(parts[0])
	}
	if len(parts) >= 2 {
		size, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	return code, size
}

func looksLikeUserAgent(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "Mozilla") ||
		strings.Contains(lower, "bot") ||
		strings.Contains(lower, "spider") ||
		!strings.Contains(lower, "http")
}
