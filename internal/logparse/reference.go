package logparse

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReferenceEntry is one URL from a site-crawl export, used as the reference
// set for orphan-page detection.
type ReferenceEntry struct {
	URL          string
	HTTPCode     *int
	Indexability string
}

// Column names are matched by prefix so both the UTF-8 and latin-1 spellings
// of accented headers ("indexabilité") resolve to the same column.
var (
	referenceURLColumns   = []string{"adresse", "address", "url"}
	referenceCodeColumns  = []string{"code http", "status code", "http status", "status"}
	referenceIndexColumns = []string{"indexabilit", "indexability", "indexable"}
)

// ParseReferenceExport reads a crawl-export CSV (Screaming Frog style) and
// returns its URLs. The URL column may be localized; status and
// indexability columns are optional.
func ParseReferenceExport(r io.Reader) ([]ReferenceEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	urlCol := findColumn(header, referenceURLColumns)
	if urlCol < 0 {
		return nil, fmt.Errorf("no URL column in header %v", header)
	}
	codeCol := findColumn(header, referenceCodeColumns)
	indexCol := findColumn(header, referenceIndexColumns)

	var entries []ReferenceEntry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Ragged or quoted-wrong rows are skipped, not fatal.
			continue
		}
		if urlCol >= len(row) {
			continue
		}
		url := strings.TrimSpace(row[urlCol])
		if url == "" {
			continue
		}

		entry := ReferenceEntry{URL: url}
		if codeCol >= 0 && codeCol < len(row) {
			if code, err := strconv.Atoi(strings.TrimSpace(row[codeCol])); err == nil {
				entry.HTTPCode = &code
			}
		}
		if indexCol >= 0 && indexCol < len(row) {
			entry.Indexability = strings.TrimSpace(row[indexCol])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func findColumn(header []string, candidates []string) int {
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for _, c := range candidates {
			if strings.HasPrefix(name, c) {
				return i
			}
		}
	}
	return -1
}
