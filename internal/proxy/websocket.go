package proxy

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 45 * time.Second
	closeGracePeriod        = time.Second
)

var errShuttingDown = errors.New("server shutting down")

// handshakeHeaders are generated by the dialer and must not be copied from
// the client request.
var handshakeHeaders = map[string]struct{}{
	"Upgrade":                  {},
	"Connection":               {},
	"Sec-Websocket-Key":        {},
	"Sec-Websocket-Version":    {},
	"Sec-Websocket-Extensions": {},
	"Sec-Websocket-Protocol":   {},
	"Proxy-Connection":         {},
	"Keep-Alive":               {},
	"Te":                       {},
	"Trailer":                  {},
	"Transfer-Encoding":        {},
}

// wsRelay accepts a client WebSocket upgrade and pipes frames to and from a
// connection dialed to the rule target.
type wsRelay struct {
	rule     *Rule
	upgrader websocket.Upgrader
	dialer   websocket.Dialer
	logger   *slog.Logger
	metrics  *Metrics
	done     <-chan struct{}
}

func newWSRelay(rule *Rule, logger *slog.Logger, metrics *Metrics, done <-chan struct{}) *wsRelay {
	timeout := rule.Timeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	return &wsRelay{
		rule: rule,
		upgrader: websocket.Upgrader{
			// Dev servers are reached from whatever origin the front-end runs on.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: !rule.Secure, //nolint:gosec // opt-in via secure: false
			},
		},
		logger:  logger,
		metrics: metrics,
		done:    done,
	}
}

func (x *wsRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dest := x.rule.UpstreamURL(r.URL, true)
	connID := uuid.NewString()
	log := x.logger.With(
		slog.String("prefix", x.rule.Prefix),
		slog.String("upstream", dest.String()),
		slog.String("conn_id", connID),
	)

	dialer := x.dialer
	dialer.Subprotocols = websocket.Subprotocols(r)

	upstream, resp, err := dialer.DialContext(r.Context(), dest.String(), x.upstreamHeader(r))
	if err != nil {
		status := http.StatusBadGateway
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			status = resp.StatusCode
		}
		log.Error("websocket dial failed", slog.Int("status", status), slog.Any("error", err))
		writeError(w, status, fmt.Sprintf("proxy %s -> %s: websocket dial: %v", x.rule.Prefix, x.rule.Target.Host, err))
		return
	}

	respHeader := http.Header{}
	if sub := upstream.Subprotocol(); sub != "" {
		respHeader.Set("Sec-WebSocket-Protocol", sub)
	}
	if resp != nil {
		for _, c := range resp.Header.Values("Set-Cookie") {
			respHeader.Add("Set-Cookie", c)
		}
	}

	client, err := x.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Warn("client websocket upgrade failed", slog.Any("error", err))
		_ = upstream.Close()
		return
	}

	x.metrics.websocketOpened(x.rule.Prefix)
	log.Info("websocket relay opened")

	errc := make(chan error, 2)
	go relayFrames(upstream, client, errc)
	go relayFrames(client, upstream, errc)

	select {
	case err = <-errc:
	case <-x.done:
		err = errShuttingDown
		deadline := time.Now().Add(closeGracePeriod)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = client.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = upstream.WriteControl(websocket.CloseMessage, msg, deadline)
	}

	_ = client.Close()
	_ = upstream.Close()
	x.metrics.websocketClosed(x.rule.Prefix)

	if isExpectedClose(err) {
		log.Info("websocket relay closed")
		return
	}
	log.Warn("websocket relay closed with error", slog.Any("error", err))
}

// upstreamHeader copies the client handshake headers that make sense
// upstream and applies changeOrigin and the rule's extra headers.
func (x *wsRelay) upstreamHeader(r *http.Request) http.Header {
	h := http.Header{}
	for k, vv := range r.Header {
		if _, skip := handshakeHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vv {
			h.Add(k, v)
		}
	}

	if clientIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		h.Set("X-Forwarded-For", clientIP)
	}
	h.Set("X-Forwarded-Host", r.Host)
	if r.TLS != nil {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}

	if !x.rule.ChangeOrigin {
		// The dialer derives Host from the URL unless told otherwise.
		h.Set("Host", r.Host)
	}
	for k, v := range x.rule.Headers {
		h.Set(k, v)
	}
	return h
}

// relayFrames copies messages from src to dst until src fails, then forwards
// the close reason to dst.
func relayFrames(dst, src *websocket.Conn, errc chan<- error) {
	for {
		kind, msg, err := src.ReadMessage()
		if err != nil {
			code, text := websocket.CloseNormalClosure, ""
			var ce *websocket.CloseError
			if errors.As(err, &ce) && sendableCloseCode(ce.Code) {
				code, text = ce.Code, ce.Text
			}
			_ = dst.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(closeGracePeriod))
			errc <- err
			return
		}
		if err := dst.WriteMessage(kind, msg); err != nil {
			errc <- err
			return
		}
	}
}

// sendableCloseCode filters out codes that are reserved for local use and
// must never appear in a close frame.
func sendableCloseCode(code int) bool {
	switch code {
	case websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return false
	}
	return true
}

func isExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, errShuttingDown) || errors.Is(err, net.ErrClosed)
}
