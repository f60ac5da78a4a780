package ws

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/mahaj/bizchat/pkg/auth"
	"github.com/mahaj/bizchat/pkg/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler authenticates the handshake, upgrades the connection and keeps
// the resulting client registered for as long as the socket lives.
type Handler struct {
	verifier *auth.Verifier
	reg      registry.Registry
	typist   Typist
}

func NewHandler(v *auth.Verifier, reg registry.Registry, typist Typist) *Handler {
	return &Handler{verifier: v, reg: reg, typist: typist}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		refuse(w, auth.ErrMissingCredential)
		return
	}
	id, err := h.verifier.Verify(token)
	if err != nil {
		refuse(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "user", id.UserID, "err", err)
		return
	}

	c := newClient(id.UserID, conn)
	h.reg.Register(id.UserID, c)
	log.Info("client registered", "user", id.UserID, "handle", c.ID())

	go c.writePump()
	go c.readPump(h.typist, func() {
		h.reg.Unregister(c)
		log.Info("client unregistered", "user", id.UserID, "handle", c.ID())
	})
}

func refuse(w http.ResponseWriter, err error) {
	log.Debug("websocket handshake refused", "err", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
}
