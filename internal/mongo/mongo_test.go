package mongo

import (
	"context"
	"testing"

	"channel_relay/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRejectsIncompleteConfig(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGO_URI is empty")
	assert.Contains(t, err.Error(), "MONGO_DB_NAME is empty")

	_, err = Connect(context.Background(), Config{URI: "mongodb://localhost:27017"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "MONGO_URI")
}

func TestInitFromConfigWithoutURI(t *testing.T) {
	cfg := config.Default()
	cfg.MongoURI = ""

	_, err := InitFromConfig(cfg)
	assert.ErrorContains(t, err, "invalid MongoDB config")
}

func TestCloseNilClient(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close(context.Background()))
}
