package logparse_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkessler/crawlscope/internal/logparse"
)

func TestDetectFormat(t *testing.T) {
	rawLine := `66.249.66.1 - - [15/Jan/2026:08:30:00 +0000] "GET / HTTP/1.1" 200 5 "-" "Googlebot/2.1"`

	tests := []struct {
		name  string
		first string
		want  logparse.FileFormat
	}{
		{"raw apache line", rawLine, logparse.FormatRawLog},
		{"csv header", "ip,datetime,url,status,size,user_agent", logparse.FormatCSVLog},
		{"quoted csv header", `"IP","DateTime","URL","User_Agent"`, logparse.FormatCSVLog},
		{"semicolon header", "ip;datetime;url;status;user_agent", logparse.FormatCSVLog},
		{"too few known columns", "foo,bar,url", logparse.FormatRawLog},
		{"garbage", "not a log line at all", logparse.FormatRawLog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logparse.DetectFormat(tt.first))
		})
	}
}

func TestCountLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"empty", "", 0},
		{"single with newline", "a\n", 1},
		{"single without newline", "a", 1},
		{"several", "a\nb\nc\n", 3},
		{"trailing partial", "a\nb\nc", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logparse.CountLines(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountLinesLargeInput(t *testing.T) {
	// Spans multiple read chunks.
	line := strings.Repeat("x", 4096) + "\n"
	input := strings.Repeat(line, 1000)
	got, err := logparse.CountLines(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got)
}
