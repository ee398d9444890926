package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/heapstore/internal/logging"
)

func TestInitRoutesRecords(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(slog.LevelDebug, &buf)
	t.Cleanup(logging.Discard)

	logging.WithTx("bufferpool", 7).Debug("page evicted", "page", 3)

	out := buf.String()
	assert.Contains(t, out, "page evicted")
	assert.Contains(t, out, "component=bufferpool")
	assert.Contains(t, out, "tx_id=7")
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(slog.LevelInfo, &buf)
	t.Cleanup(logging.Discard)

	logging.WithComponent("catalog").Debug("hidden")
	logging.WithTable("catalog", "emp", 42).Info("table added")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "table=emp")
}

func TestWithPageTagsCoordinate(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(slog.LevelDebug, &buf)
	t.Cleanup(logging.Discard)

	logging.WithPage("bufferpool", 9, 3).Debug("page flushed")

	out := buf.String()
	assert.Contains(t, out, "table_id=9")
	assert.Contains(t, out, "page=3")
}
