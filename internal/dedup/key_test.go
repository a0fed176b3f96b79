package dedup_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mkessler/crawlscope/internal/dedup"
)

func TestKeyDeterministic(t *testing.T) {
	client := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)

	k1 := dedup.Key(client, ts, "/products", "Googlebot/2.1")
	k2 := dedup.Key(client, ts, "/products", "Googlebot/2.1")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestKeyVariesPerComponent(t *testing.T) {
	client := uuid.New()
	other := uuid.New()
	ts := time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)

	base := dedup.Key(client, ts, "/a", "ua")
	assert.NotEqual(t, base, dedup.Key(other, ts, "/a", "ua"))
	assert.NotEqual(t, base, dedup.Key(client, ts.Add(time.Second), "/a", "ua"))
	assert.NotEqual(t, base, dedup.Key(client, ts, "/b", "ua"))
	assert.NotEqual(t, base, dedup.Key(client, ts, "/a", "ua2"))
}

func TestKeyNormalizesTrailingSlash(t *testing.T) {
	client := uuid.New()
	ts := time.Now()
	assert.Equal(t,
		dedup.Key(client, ts, "/products/", "ua"),
		dedup.Key(client, ts, "/products", "ua"))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/a", dedup.NormalizePath("/a/"))
	assert.Equal(t, "/a", dedup.NormalizePath("/a"))
	assert.Equal(t, "/", dedup.NormalizePath("/"))
	assert.Equal(t, "", dedup.NormalizePath(""))
}
