package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "production", "warn")

	logger.Info().Msg("dropped")
	logger.Warn().Str("sku", "A-1").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "A-1", entry["sku"])
	assert.Equal(t, "catalog-service", entry["service"])
	assert.Contains(t, entry, "time")
}

func TestNewWithWriter_ConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, "development", "debug")

	logger.Debug().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNewWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := newWithWriter(&bytes.Buffer{}, "production", "loud")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = newWithWriter(&bytes.Buffer{}, "production", "")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
