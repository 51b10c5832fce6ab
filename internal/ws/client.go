package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ledgerdesk/api/internal/auth"
	"github.com/ledgerdesk/api/internal/middleware"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set headers on the upgrade; the token query param
	// authenticates instead.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one websocket connection subscribed to a customer.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	customerID uuid.UUID
	send       chan []byte
}

// ReadPump only watches for disconnects; clients never send data.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("customer_id", c.customerID.String()).Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued events into one frame, newline separated.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades GET /ws/customers/{cid}/ledger?token=JWT. The token must
// belong to an active user.
func ServeWS(hub *Hub, jwtSecret string, users middleware.UserLookup, w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := middleware.ResolveToken(r.Context(), jwtSecret, users, tokenStr)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	case errors.Is(err, middleware.ErrInactiveUser):
		http.Error(w, "account inactive", http.StatusUnauthorized)
		return
	case err != nil:
		log.Error().Err(err).Msg("resolve websocket user")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	customerID, err := uuid.Parse(chi.URLParam(r, "cid"))
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	log.Debug().Str("user_id", claims.UserID.String()).Str("customer_id", customerID.String()).Msg("ledger stream opened")

	client := &Client{
		hub:        hub,
		conn:       conn,
		customerID: customerID,
		send:       make(chan []byte, 256),
	}
	if !hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
