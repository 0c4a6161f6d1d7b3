package push

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	hub "github.com/vrsandeep/bom-preview/internal/websocket"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) add(m json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(m))
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func setupHub(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	h := hub.NewHub()
	go h.Run()
	mux := http.NewServeMux()
	mux.HandleFunc("/socket.io", h.ServeWs)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return h, server
}

// settle gives the adapter time to dial and the hub time to register the
// subscription.
func settle() { time.Sleep(150 * time.Millisecond) }

func TestSocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:9000/socket.io", socketURL("http://localhost:9000", "/socket.io"))
	assert.Equal(t, "wss://erp.example.com/socket.io", socketURL("https://erp.example.com/", "/socket.io"))
	assert.Equal(t, "ws://host/socket.io", socketURL("ws://host", "/socket.io"))
}

func TestAdapter_DeliversTopicMessages(t *testing.T) {
	h, server := setupHub(t)
	a := New("preview", server.URL, "/socket.io")
	rec := &recorder{}

	a.Subscribe("t1", rec.add)
	defer a.Stop()
	settle()
	assert.True(t, a.Active())

	require.NoError(t, h.Publish("t2", map[string]string{"status": "running"}))
	require.NoError(t, h.Publish("t1", map[string]any{"status": "running", "progress": 40}))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"status":"running","progress":40}`, rec.msgs[0])
}

func TestAdapter_StopIsIdempotentAndFinal(t *testing.T) {
	h, server := setupHub(t)
	a := New("preview", server.URL, "/socket.io")
	rec := &recorder{}

	a.Subscribe("t1", rec.add)
	settle()

	a.Stop()
	a.Stop()
	assert.False(t, a.Active())

	require.NoError(t, h.Publish("t1", map[string]string{"status": "finished"}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestAdapter_ResubscribeReplacesPreviousConnection(t *testing.T) {
	h, server := setupHub(t)
	a := New("preview", server.URL, "/socket.io")
	first := &recorder{}
	second := &recorder{}

	a.Subscribe("t1", first.add)
	settle()
	a.Subscribe("t1", second.add)
	defer a.Stop()
	settle()

	require.NoError(t, h.Publish("t1", map[string]string{"status": "running"}))
	require.Eventually(t, func() bool { return second.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, first.count())
	assert.Equal(t, 1, second.count())
}

func TestAdapter_ConnectionFailureIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	a := New("preview", url, "/socket.io", WithReconnectDelay(20*time.Millisecond))
	a.Subscribe("t1", func(json.RawMessage) { t.Error("unexpected delivery") })
	time.Sleep(100 * time.Millisecond)
	assert.True(t, a.Active())
	a.Stop()
	assert.False(t, a.Active())
}

func TestAdapter_StopWithoutSubscribe(t *testing.T) {
	a := New("preview", "http://localhost:1", "/socket.io")
	assert.NotPanics(t, a.Stop)
}
