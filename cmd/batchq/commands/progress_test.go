package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/batchq/pkg/queue"
)

func TestRenderStatus(t *testing.T) {
	s := queue.Stats{
		Total:                  10,
		Completed:              4,
		Failed:                 1,
		Retrying:               1,
		Processing:             2,
		Queued:                 2,
		ETAKnown:               true,
		EstimatedTimeRemaining: 90 * time.Second,
	}

	line := renderStatus(s, false)
	require.Equal(t, " 50%  5/10  ✓ 4  ✗ 1  ↻ 1  ▶ 2  ETA 1m30s", line)

	s.ETAKnown = false
	require.True(t, strings.HasSuffix(renderStatus(s, false), "ETA --"))

	s.IsPaused = true
	require.True(t, strings.HasSuffix(renderStatus(s, false), "paused"))
}

func TestProgressLineDropsStaleSnapshots(t *testing.T) {
	out := &bytes.Buffer{}
	p := &progressLine{out: out}

	p.OnEvent(queue.Event{Topic: queue.TopicItemCompleted, Stats: queue.Stats{Version: 5, Total: 2, Completed: 2}})
	before := out.Len()
	p.OnEvent(queue.Event{Topic: queue.TopicItemDispatched, Stats: queue.Stats{Version: 3, Total: 2, Completed: 1}})
	require.Equal(t, before, out.Len())

	failed := &queue.Item{ID: "x", Status: queue.StatusFailed, Error: "boom"}
	p.OnEvent(queue.Event{Topic: queue.TopicItemFailed, Item: failed, Stats: queue.Stats{Version: 6, Total: 2, Completed: 1, Failed: 1}})
	require.Contains(t, out.String(), "✗ x: boom\n")

	p.OnEvent(queue.Event{Topic: queue.TopicDrained, Stats: queue.Stats{Version: 7, Total: 2, Completed: 1, Failed: 1}})
	require.True(t, strings.HasSuffix(out.String(), "\n"))
}

func TestProgressLoggerSkipsQueueEvents(t *testing.T) {
	buf := &bytes.Buffer{}
	p := &progressLogger{logger: zerolog.New(buf)}

	p.OnEvent(queue.Event{Topic: queue.TopicStarted})
	require.Empty(t, buf.String())

	p.OnEvent(queue.Event{
		Topic: queue.TopicItemRetrying,
		Item:  &queue.Item{ID: "a", Status: queue.StatusRetrying, Attempts: 1, Error: "flaky"},
		Stats: queue.Stats{Total: 1, Retrying: 1},
	})
	require.Contains(t, buf.String(), `"item_id":"a"`)
	require.Contains(t, buf.String(), `"status":"retrying"`)
	require.Contains(t, buf.String(), `"error":"flaky"`)
}
