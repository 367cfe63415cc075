package configstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRecordRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	rec := cacheRecord{FetchedAt: now, Policy: json.RawMessage(`{"version":1}`)}

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded cacheRecord
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.FetchedAt.Equal(now))
	assert.JSONEq(t, `{"version":1}`, string(decoded.Policy))
}

func TestS3CacheKeyEscapesOrgProjectSeparator(t *testing.T) {
	assert.Equal(t, "policy/acme_widgets.json", s3CacheKey("acme/widgets"))
}

func TestRedisCacheKeyNamespaced(t *testing.T) {
	assert.Equal(t, "trustpin:policy:acme/widgets", redisCacheKey("acme/widgets"))
}
