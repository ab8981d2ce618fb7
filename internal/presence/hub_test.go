package presence

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := NewHub(logger, func(*http.Request) bool { return true })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"
}

func dial(t *testing.T, base, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHubAnnouncesArrivalsAndDepartures(t *testing.T) {
	hub, base := newTestHub(t)

	alice := dial(t, base, "alice")
	assert.Equal(t, `["alice"]`, read(t, alice))
	assert.Equal(t, `"alice" online`, read(t, alice))

	bob := dial(t, base, "bob")
	assert.Equal(t, `["alice","bob"]`, read(t, bob))
	assert.Equal(t, `"bob" online`, read(t, bob))
	assert.Equal(t, `"bob" online`, read(t, alice))
	assert.Equal(t, []string{"alice", "bob"}, hub.Online())

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Equal(t, `"bob" offline`, read(t, alice))
	assert.Eventually(t, func() bool { return len(hub.Online()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubOnlineListsUsersOnce(t *testing.T) {
	hub, base := newTestHub(t)

	first := dial(t, base, "alice")
	read(t, first)
	read(t, first)
	second := dial(t, base, "alice")
	assert.Equal(t, `["alice"]`, read(t, second))
	assert.Equal(t, []string{"alice"}, hub.Online())
}

func TestHubCloseDuringConnects(t *testing.T) {
	hub, base := newTestHub(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(base+"alice", nil)
			if err != nil {
				return
			}
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			// either the greeting or a close frame, never a dead server
			_, _, _ = conn.ReadMessage()
		}()
		go func() {
			defer wg.Done()
			hub.Close()
		}()
	}
	wg.Wait()

	// the hub still serves after being closed under load
	conn := dial(t, base, "bob")
	assert.Contains(t, read(t, conn), `"bob"`)
}
