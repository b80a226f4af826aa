package httpserver

import (
	"net/http"
	"strings"

	"tradecore/internal/notify"

	"github.com/gorilla/websocket"
)

// EventsWSHandler streams a user's settlement events over a websocket.
// Auth via query param token, the standard for browser websockets.
type EventsWSHandler struct {
	hub      *notify.Hub
	verifier *TokenVerifier
	origin   string
	upgrader websocket.Upgrader
}

func NewEventsWSHandler(hub *notify.Hub, verifier *TokenVerifier, origin string) *EventsWSHandler {
	return &EventsWSHandler{
		hub:      hub,
		verifier: verifier,
		origin:   origin,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" || origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
		if strings.Contains(reqOrigin, "localhost") || strings.Contains(reqOrigin, "127.0.0.1") {
			return true
		}
	}
	return strings.EqualFold(reqOrigin, origin)
}

func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, role, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	// Admins see the full stream, users only their own events.
	all := role == "admin"
	for {
		select {
		case ev := <-sub:
			if !all && ev.UserID != userID {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
