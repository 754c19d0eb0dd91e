package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, Init(Options{Level: "info", File: file, Console: &buf}))
	defer Close()

	log.Debug().Msg("hidden")
	log.Info().Str("job_id", "j1").Msg("job started")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &ev))
	assert.Equal(t, "printorder", ev["service"])
	assert.Equal(t, "j1", ev["job_id"])
	assert.FileExists(t, file)
}

func TestAxiomEvent(t *testing.T) {
	t.Parallel()

	_, ok := axiomEvent([]byte(`{"level":"debug","message":"x"}`))
	assert.False(t, ok)

	ev, ok := axiomEvent([]byte(`{"level":"warn","message":"slow page"}`))
	require.True(t, ok)
	assert.Equal(t, "printorder", ev["service"])
	assert.Contains(t, ev, ingest.TimestampField)

	ev, ok = axiomEvent([]byte("not json"))
	require.True(t, ok)
	assert.Equal(t, "not json", ev["message"])
}
