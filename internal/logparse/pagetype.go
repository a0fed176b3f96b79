package logparse

import (
	"path"
	"strings"
)

// Page type labels assigned by extension.
const (
	PageTypePage       = "page"
	PageTypeJavascript = "javascript"
	PageTypeCSS        = "css"
	PageTypeImage      = "image"
	PageTypeFont       = "font"
	PageTypeXML        = "xml"
	PageTypeJSON       = "json"
	PageTypePDF        = "pdf"
	PageTypeOther      = "other"
)

var pageTypeByExt = map[string]string{
	".html": PageTypePage, ".htm": PageTypePage, ".php": PageTypePage,
	".asp": PageTypePage, ".aspx": PageTypePage, ".jsp": PageTypePage,
	".shtml": PageTypePage,

	".js": PageTypeJavascript, ".mjs": PageTypeJavascript,
	".jsx": PageTypeJavascript, ".ts": PageTypeJavascript,
	".tsx": PageTypeJavascript,

	".css": PageTypeCSS, ".scss": PageTypeCSS, ".less": PageTypeCSS,

	".jpg": PageTypeImage, ".jpeg": PageTypeImage, ".png": PageTypeImage,
	".gif": PageTypeImage, ".svg": PageTypeImage, ".webp": PageTypeImage,
	".ico": PageTypeImage, ".bmp": PageTypeImage, ".tiff": PageTypeImage,
	".avif": PageTypeImage,

	".woff": PageTypeFont, ".woff2": PageTypeFont, ".ttf": PageTypeFont,
	".eot": PageTypeFont, ".otf": PageTypeFont,

	".xml": PageTypeXML, ".rss": PageTypeXML, ".atom": PageTypeXML,
	".xsl": PageTypeXML,

	".json": PageTypeJSON,
	".pdf":  PageTypePDF,
}

// PageTypes lists every label ClassifyPageType can return, for the filter
// catalogue endpoint.
func PageTypes() []string {
	return []string{
		PageTypePage, PageTypeJavascript, PageTypeCSS, PageTypeImage,
		PageTypeFont, PageTypeXML, PageTypeJSON, PageTypePDF, PageTypeOther,
	}
}

// ClassifyPageType buckets a URL path by its file extension. Extensionless
// paths count as pages.
func ClassifyPageType(url string) string {
	clean := url
	if i := strings.IndexByte(clean, '?'); i >= 0 {
		clean = clean[:i]
	}
	if i := strings.IndexByte(clean, '#'); i >= 0 {
		clean = clean[:i]
	}
	ext := strings.ToLower(path.Ext(clean))
	if ext == "" {
		return PageTypePage
	}
	if t, ok := pageTypeByExt[ext]; ok {
		return t
	}
	return PageTypeOther
}
