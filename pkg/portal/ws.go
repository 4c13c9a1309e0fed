package portal

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"lumen/pkg/httpx"
	"lumen/pkg/stream"
)

// StreamEvents serves GET /v1/stream: a websocket feed of the
// organization's evaluation activity. Slow clients drop events rather than
// backing up publishers.
func (h *Handlers) StreamEvents(allowedOrigins string) http.HandlerFunc {
	origins := wsOriginPatterns(allowedOrigins)
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			httpx.Error(w, http.StatusInternalServerError, "portal handler without principal")
			return
		}
		if h.Hub == nil {
			httpx.Error(w, http.StatusServiceUnavailable, "stream unavailable")
			return
		}
		opts := &websocket.AcceptOptions{}
		if len(origins) > 0 {
			opts.OriginPatterns = origins
		}
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		events, unsubscribe := h.Hub.Subscribe(principal.OrgID, 64)
		defer unsubscribe()

		_ = wsjson.Write(ctx, conn, stream.Event{Type: "ready", OrgID: principal.OrgID, At: time.Now().UTC().Format(time.RFC3339Nano)})
		readErr := make(chan error, 1)
		go func() {
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					readErr <- err
					return
				}
			}
		}()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			case <-readErr:
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			case evt, ok := <-events:
				if !ok {
					_ = conn.Close(websocket.StatusNormalClosure, "closed")
					return
				}
				writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
				err := wsjson.Write(writeCtx, conn, evt)
				cancelWrite()
				if err != nil {
					_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
					return
				}
			}
		}
	}
}

func wsOriginPatterns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
