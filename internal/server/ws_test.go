package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penguinblur/penguinblur-api/internal/notify"
)

func dialEvents(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEvents_StreamsJobLifecycle(t *testing.T) {
	f := newFixture(t)
	conn := dialEvents(t, f)

	jobID := f.uploadVideo(t)
	f.startProcessing(t, jobID)
	f.waitCompleted(t, jobID)

	// Read events until the completed one arrives; delivery order per job
	// matches mutation order.
	deadline := time.Now().Add(2 * time.Second)
	sawCreated := false
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var event notify.Event
		require.NoError(t, conn.ReadJSON(&event))
		require.Equal(t, jobID, event.JobID)

		if event.Type == notify.EventCreated {
			sawCreated = true
		}
		if event.Status == "completed" {
			assert.Equal(t, 100, event.Progress)
			break
		}
	}
	assert.True(t, sawCreated, "created event should precede completion")
}

func TestEvents_ClientDisconnectDetachesSubscriber(t *testing.T) {
	f := newFixture(t)
	conn := dialEvents(t, f)

	// Give the server a moment to register the subscription, then drop it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())

	// Publishing afterwards must not block or panic even though the wire
	// is gone; the reader goroutine cleans the subscription up.
	time.Sleep(20 * time.Millisecond)
	jobID := f.uploadVideo(t)
	f.startProcessing(t, jobID)
	f.waitCompleted(t, jobID)
}
