package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSQLStoreRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "state.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewSQLStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	records, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	at := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, Records{"@shop:1": at, "@shop:2": at.Add(time.Hour)}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Records{"@shop:1": at, "@shop:2": at.Add(time.Hour)}, loaded)

	require.NoError(t, store.Save(ctx, Records{"@shop:3": at}))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Records{"@shop:3": at}, loaded)
}
