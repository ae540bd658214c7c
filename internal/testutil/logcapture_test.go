package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCaptureKeepsRecords(t *testing.T) {
	c, logger := NewLogCapture()
	logger.Info("patched", "method", "A:B")
	logger.With("run", "r1").Warn("skipped", "count", 2)
	logger.Debug("noise")

	recs := c.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "patched", recs[0].Message)
	assert.Equal(t, "A:B", recs[0].Attrs["method"])
	assert.Equal(t, "r1", recs[1].Attrs["run"])
	assert.Equal(t, int64(2), recs[1].Attrs["count"])

	assert.Equal(t, []string{"skipped"}, c.Messages(slog.LevelWarn))
}
