package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thaasbai/coordinator/internal/v1/admission"
	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
)

// Coordinator is the application surface the hub hands connections to.
type Coordinator interface {
	frameHandler
	Sessions() *sessions.Registry
	Guard() *admission.Guard
}

// Hub upgrades HTTP requests into coordinator sessions.
type Hub struct {
	coord          Coordinator
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewHub builds the WebSocket entry point. An empty origin list preserves
// the deployed behaviour of accepting any browser origin.
func NewHub(coord Coordinator, allowedOrigins []string) *Hub {
	h := &Hub{coord: coord, allowedOrigins: allowedOrigins}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), h.allowedOrigins)
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}
	return h
}

// originAllowed matches scheme and host against the allow-list. Non-browser
// clients send no Origin header and pass.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, a := range allowed {
		allowedURL, err := url.Parse(a)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

// ServeWs upgrades the request, runs admission, and starts the session.
// Admission refusals happen after the upgrade so the browser client can read
// the reason from an error frame before the close.
func (h *Hub) ServeWs(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}

	ip := admission.ClientIP(c.Request)
	if err := h.coord.Guard().CheckConnect(ctx, ip); err != nil {
		label := events.ErrInternal.Label
		if we, ok := events.AsWire(err); ok {
			label = we.Label
		}
		logging.Warn(ctx, "connection refused at admission",
			zap.String("ip", ip), zap.String("reason", label))
		refuse(conn, label)
		return
	}

	sid := uuid.NewString()
	client := newClient(sid, conn, h.coord)
	h.coord.Sessions().Add(sid, ip, client)
	metrics.IncConnection()

	logging.Info(logging.WithSession(ctx, sid), "session connected", zap.String("ip", ip))

	if frame, err := events.Marshal(events.EventConnected, events.ConnectedData{SID: sid}); err == nil {
		client.Send(frame)
	}

	// The request context dies when this handler returns; the pumps outlive
	// it but keep its correlation fields for logging.
	pumpCtx := logging.WithSession(context.WithoutCancel(c.Request.Context()), sid)
	go client.writePump()
	go client.readPump(pumpCtx)
}

// refuse delivers the admission verdict on the freshly upgraded socket and
// closes it. No session is created.
func refuse(conn *websocket.Conn, label string) {
	if frame, err := events.Marshal(events.EventError, events.ErrorData{Message: label}); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.Close()
}
