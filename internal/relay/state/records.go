// Package state persists the keys of already relayed messages between runs.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"channel_relay/internal/logger"
	"channel_relay/internal/relay/models"
)

// Records maps a "channel:message_id" key to the content time of the relayed message.
// It is owned by a single run and never accessed concurrently.
type Records map[models.Key]time.Time

// Store loads and saves the full record set. A missing or corrupt store loads as
// empty; only backend I/O failures are returned as errors.
type Store interface {
	Load(ctx context.Context) (Records, error)
	Save(ctx context.Context, records Records) error
}

// Add records key with the message's own timestamp, normalized to UTC seconds.
func (r Records) Add(key models.Key, at time.Time) {
	r[key] = at.UTC().Truncate(time.Second)
}

// Has reports whether key has been relayed.
func (r Records) Has(key models.Key) bool {
	_, ok := r[key]
	return ok
}

// FirstPresent returns the first of keys already recorded.
func (r Records) FirstPresent(keys []models.Key) (models.Key, bool) {
	for _, key := range keys {
		if r.Has(key) {
			return key, true
		}
	}
	return "", false
}

// Span returns the oldest and newest record timestamps.
func (r Records) Span() (oldest, newest time.Time) {
	for _, at := range r {
		if oldest.IsZero() || at.Before(oldest) {
			oldest = at
		}
		if at.After(newest) {
			newest = at
		}
	}
	return oldest, newest
}

// Prune returns the records whose timestamp is not before cutoff.
func Prune(records Records, cutoff time.Time) Records {
	kept := make(Records, len(records))
	for key, at := range records {
		if !at.Before(cutoff) {
			kept[key] = at
		}
	}
	return kept
}

// Encode serializes records as a JSON object of key -> "YYYY-MM-DD HH:MM:SS" (UTC).
func Encode(records Records) ([]byte, error) {
	data, err := json.MarshalIndent(toEntries(records), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode forward records: %w", err)
	}
	return data, nil
}

// Decode parses the JSON produced by Encode. Entries with malformed keys or
// timestamps are dropped; a malformed document is an error.
func Decode(data []byte) (Records, error) {
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode forward records: %w", err)
	}
	return fromEntries(entries), nil
}

func toEntries(records Records) map[string]string {
	entries := make(map[string]string, len(records))
	for key, at := range records {
		entries[string(key)] = models.FormatRecordTime(at)
	}
	return entries
}

// fromEntries 只接受规范格式的时间戳，保证 load -> save 原样写回
func fromEntries(entries map[string]string) Records {
	records := make(Records, len(entries))
	var dropped []string
	for raw, stamp := range entries {
		key := models.Key(raw)
		if _, _, err := key.Split(); err != nil {
			dropped = append(dropped, raw)
			continue
		}
		at, err := models.ParseRecordTime(stamp)
		if err != nil || models.FormatRecordTime(at) != stamp {
			dropped = append(dropped, raw)
			continue
		}
		records[key] = at
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		logger.L().Warnf("Dropped %d malformed forward records: %v", len(dropped), dropped)
	}
	return records
}

func toForwardRecords(records Records) []models.ForwardRecord {
	rows := make([]models.ForwardRecord, 0, len(records))
	for key, at := range records {
		rows = append(rows, models.ForwardRecord{Key: key, Stamp: models.FormatRecordTime(at)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func fromForwardRecords(rows []models.ForwardRecord) Records {
	entries := make(map[string]string, len(rows))
	for _, row := range rows {
		entries[string(row.Key)] = row.Stamp
	}
	return fromEntries(entries)
}
