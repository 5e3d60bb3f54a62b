package proxy_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/devproxy/internal/proxy"
)

type echoRecord struct {
	mu   sync.Mutex
	host string
	path string
}

func newEchoUpstream(t *testing.T) (*httptest.Server, *echoRecord) {
	t.Helper()
	rec := &echoRecord{}
	upgrader := websocket.Upgrader{Subprotocols: []string{"robot.v1"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.host = r.Host
		rec.path = r.URL.Path
		rec.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://") + path
}

func TestWebSocketRelay_EchoesThroughProxy(t *testing.T) {
	upstream, rec := newEchoUpstream(t)

	table := sealedTable(t, "/api", proxy.RuleSpec{
		Target:       wsURL(upstream, "/ws/robot/status"),
		ChangeOrigin: true,
	})
	devServer := httptest.NewServer(newForwarder(t, table).Middleware(fallthroughHandler))
	t.Cleanup(devServer.Close)

	dialer := websocket.Dialer{Subprotocols: []string{"robot.v1"}}
	conn, resp, err := dialer.Dial(wsURL(devServer, "/api/v1/robot"), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "robot.v1", conn.Subprotocol())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"battery":87}`)))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"battery":87}`, string(msg))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), rec.host)
	assert.Equal(t, "/ws/robot/status/api/v1/robot", rec.path)
}

func TestWebSocketRelay_PreservesHostWithoutChangeOrigin(t *testing.T) {
	upstream, rec := newEchoUpstream(t)

	table := sealedTable(t, "/socket", proxy.RuleSpec{Target: wsURL(upstream, "")})
	devServer := httptest.NewServer(newForwarder(t, table).Middleware(fallthroughHandler))
	t.Cleanup(devServer.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(devServer, "/socket"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{1, 2, 3}, msg)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, strings.TrimPrefix(devServer.URL, "http://"), rec.host)
}

func TestWebSocketRelay_DisabledFallsThrough(t *testing.T) {
	upstream, _ := newEchoUpstream(t)

	ws := false
	table := sealedTable(t, "/api", proxy.RuleSpec{Target: wsURL(upstream, ""), WS: &ws})
	devServer := httptest.NewServer(newForwarder(t, table).Middleware(fallthroughHandler))
	t.Cleanup(devServer.Close)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(devServer, "/api"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestWebSocketRelay_UpstreamDownReturnsBadGateway(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	target := wsURL(dead, "")
	dead.Close()

	table := sealedTable(t, "/api", proxy.RuleSpec{Target: target})
	devServer := httptest.NewServer(newForwarder(t, table).Middleware(fallthroughHandler))
	t.Cleanup(devServer.Close)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(devServer, "/api"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestWebSocketRelay_ClosedOnShutdown(t *testing.T) {
	upstream, _ := newEchoUpstream(t)

	reg := prometheus.NewRegistry()
	metrics, err := proxy.NewMetrics(reg)
	require.NoError(t, err)

	table := sealedTable(t, "/api", proxy.RuleSpec{Target: wsURL(upstream, "/ws")})
	fwd, err := proxy.NewForwarder(table, slog.Default(), metrics)
	require.NoError(t, err)
	devServer := httptest.NewServer(fwd.Middleware(fallthroughHandler))
	t.Cleanup(devServer.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(devServer, "/api"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	const connections = `
# HELP devproxy_websocket_connections Open WebSocket relays by proxy rule.
# TYPE devproxy_websocket_connections gauge
devproxy_websocket_connections{prefix="/api"} %s
`
	gaugeIs := func(v string) func() bool {
		return func() bool {
			expected := strings.Replace(connections, "%s", v, 1)
			return testutil.GatherAndCompare(reg, strings.NewReader(expected), "devproxy_websocket_connections") == nil
		}
	}
	require.Eventually(t, gaugeIs("1"), time.Second, 10*time.Millisecond)

	fwd.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Eventually(t, gaugeIs("0"), 2*time.Second, 10*time.Millisecond)
}
