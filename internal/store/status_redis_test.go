package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatus(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	st := decodeStatus(map[string]string{
		"state":       "success",
		"progress":    "100",
		"message":     "done",
		"output_path": "/out/order_완료.pdf",
		"start":       start.Format(time.RFC3339Nano),
		"end":         "not a time",
		"metadata":    `{"thumbnails":4}`,
	})

	assert.Equal(t, "success", st.State)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, "/out/order_완료.pdf", st.OutputPath)
	require.NotNil(t, st.Start)
	assert.True(t, start.Equal(*st.Start))
	assert.Nil(t, st.End)
	assert.EqualValues(t, 4, st.Metadata["thumbnails"])
}

func TestDecodeStatusToleratesGarbage(t *testing.T) {
	t.Parallel()

	st := decodeStatus(map[string]string{"state": "queued", "progress": "x", "metadata": "{"})
	assert.Equal(t, "queued", st.State)
	assert.Zero(t, st.Progress)
	assert.Nil(t, st.Metadata)
}

func TestKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "job:abc:status", (&RedisStatus{keyNS: "job"}).key("abc"))
	assert.Equal(t, "blank:t123|simple|95", (&BlankCache{keyNS: "blank"}).key("t123|simple|95"))
}
