package state

import (
	"encoding/json"
	"testing"
	"time"

	"channel_relay/internal/relay/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneKeepsOnlyWindow(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-7 * 24 * time.Hour)

	records := Records{
		"@a:1": cutoff.Add(-time.Second),
		"@a:2": cutoff,
		"@a:3": now,
		"@b:9": cutoff.Add(-30 * 24 * time.Hour),
	}

	pruned := Prune(records, cutoff)
	assert.Len(t, pruned, 2)
	for key, at := range pruned {
		assert.False(t, at.Before(cutoff), "record %s older than cutoff", key)
	}
	assert.True(t, pruned.Has("@a:2"))
	assert.True(t, pruned.Has("@a:3"))
	assert.Len(t, records, 4, "input must not be modified")
}

func TestDecodePruneEncodeIsVerbatim(t *testing.T) {
	input := `{
  "@shop:10": "2025-06-09 08:00:00",
  "@shop:11": "2025-06-09 08:00:01",
  "-1001234:5": "2025-06-01 00:00:00",
  "@old:1": "2025-05-01 00:00:00"
}`
	records, err := Decode([]byte(input))
	require.NoError(t, err)
	require.Len(t, records, 4)

	cutoff := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	records = Prune(records, cutoff)
	records.Add(models.NewKey("@shop", 12), time.Date(2025, 6, 10, 9, 30, 0, 0, time.FixedZone("EAT", 3*3600)))

	out, err := Encode(records)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, map[string]string{
		"@shop:10":   "2025-06-09 08:00:00",
		"@shop:11":   "2025-06-09 08:00:01",
		"-1001234:5": "2025-06-01 00:00:00",
		"@shop:12":   "2025-06-10 06:30:00",
	}, got)
}

func TestDecodeDropsMalformedEntries(t *testing.T) {
	input := `{
  "@shop:1": "2025-06-09 08:00:00",
  "@shop:2": "yesterday",
  "@shop:3": "2025-06-09 8:00:00",
  "noid": "2025-06-09 08:00:00"
}`
	records, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.True(t, records.Has("@shop:1"))
}

func TestDecodeRejectsInvalidDocument(t *testing.T) {
	_, err := Decode([]byte(`["not", "an", "object"]`))
	assert.Error(t, err)
}

func TestRecordsFirstPresent(t *testing.T) {
	records := Records{}
	records.Add("@shop:42", time.Now())

	key, ok := records.FirstPresent([]models.Key{"@shop:41", "@shop:42", "@shop:43"})
	assert.True(t, ok)
	assert.Equal(t, models.Key("@shop:42"), key)

	_, ok = records.FirstPresent([]models.Key{"@shop:44"})
	assert.False(t, ok)
}

func TestRecordsSpan(t *testing.T) {
	a := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	records := Records{"@x:1": b, "@x:2": a}

	oldest, newest := records.Span()
	assert.Equal(t, a, oldest)
	assert.Equal(t, b, newest)

	oldest, newest = Records{}.Span()
	assert.True(t, oldest.IsZero())
	assert.True(t, newest.IsZero())
}
