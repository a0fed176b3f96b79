package logparse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkessler/crawlscope/internal/logparse"
)

func TestClassifyPageType(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"/", logparse.PageTypePage},
		{"/products", logparse.PageTypePage},
		{"/index.html", logparse.PageTypePage},
		{"/page.php?id=3", logparse.PageTypePage},
		{"/app.js", logparse.PageTypeJavascript},
		{"/style.css", logparse.PageTypeCSS},
		{"/logo.PNG", logparse.PageTypeImage},
		{"/fonts/inter.woff2", logparse.PageTypeFont},
		{"/sitemap.xml", logparse.PageTypeXML},
		{"/api/data.json", logparse.PageTypeJSON},
		{"/report.pdf", logparse.PageTypePDF},
		{"/archive.zip", logparse.PageTypeOther},
		{"/doc.pdf#page=2", logparse.PageTypePDF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, logparse.ClassifyPageType(tt.url), "url %s", tt.url)
	}
}

func TestPageTypesCatalogue(t *testing.T) {
	types := logparse.PageTypes()
	assert.Contains(t, types, logparse.PageTypePage)
	assert.Contains(t, types, logparse.PageTypeOther)
	seen := make(map[string]bool)
	for _, pt := range types {
		assert.False(t, seen[pt], "duplicate %s", pt)
		seen[pt] = true
	}
}
