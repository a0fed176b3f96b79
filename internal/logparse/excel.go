package logparse

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Expected workbook layout: one sheet per day, header row with a Line column
// carrying the raw log text and an optional Date column used when the line
// itself has no timestamp.
var excelDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01-02-06",
	"2006-01-02 15:04:05",
	"1/2/06 15:04",
}

// ParseExcelLogs reads a per-day-sheet workbook and parses every Line cell
// as an Apache log line. Sheets without a Line column and empty or
// unparseable lines are skipped.
func ParseExcelLogs(r io.Reader) ([]ParsedLine, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var lines []ParsedLine
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}

		lineCol, dateCol := -1, -1
		for i, h := range rows[0] {
			switch strings.ToLower(strings.TrimSpace(h)) {
			case "line":
				lineCol = i
			case "date":
				dateCol = i
			}
		}
		if lineCol < 0 {
			continue
		}

		for _, row := range rows[1:] {
			if lineCol >= len(row) {
				continue
			}
			raw := strings.TrimSpace(row[lineCol])
			if raw == "" {
				continue
			}
			parsed, ok := parseExcelLine(raw)
			if !ok {
				continue
			}
			if parsed.Timestamp.IsZero() && dateCol >= 0 && dateCol < len(row) {
				if ts, ok := parseExcelDate(row[dateCol]); ok {
					parsed.Timestamp = ts
				}
			}
			if parsed.Timestamp.IsZero() {
				continue
			}
			lines = append(lines, parsed)
		}
	}
	return lines, nil
}

// parseExcelLine parses one Line cell. Unlike ParseLine it tolerates an
// unparseable timestamp, leaving it zero so the caller can recover it from
// the sheet's Date column.
func parseExcelLine(raw string) (ParsedLine, bool) {
	m := apachePattern.FindStringSubmatch(raw)
	if m == nil {
		return ParsedLine{}, false
	}
	parsed, err := ParseLine(raw)
	if err == nil {
		return parsed, true
	}

	code, err := strconv.Atoi(m[5])
	if err != nil {
		return ParsedLine{}, false
	}
	var size int64
	if m[6] != "-" {
		if size, err = strconv.ParseInt(m[6], 10, 64); err != nil {
			return ParsedLine{}, false
		}
	}
	return ParsedLine{
		IP:           m[1],
		Method:       m[3],
		Path:         m[4],
		HTTPCode:     code,
		ResponseSize: size,
		UserAgent:    m[7],
		PageType:     ClassifyPageType(m[4]),
	}, true
}

func parseExcelDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range excelDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
