package core

import (
	"time"

	"github.com/vovakirdan/duelsync-server/internal/auth"
)

// Client is an anonymous identity issued by the Hub.
//
// Links to other entities are guarded by Hub.mu. conn is additionally written
// only while holding the mutex of the room the connection is bound to, so the
// connection handlers of that room may read it under the room mutex alone.
type Client struct {
	ID string
	IP string

	secret string

	expiresAt time.Time
	room      *Room
	conn      *Connection
}

// Secret returns the bearer secret issued at registration.
func (c *Client) Secret() string {
	return c.secret
}

func (c *Client) hashMatches(proof, context, rice string) bool {
	return auth.HashMatches(c.secret, proof, auth.Scope(context, rice))
}

// liveConn returns the attached connection unless it has been closed.
// Callers hold the mutex of the client's room.
func (c *Client) liveConn() *Connection {
	if c == nil || c.conn == nil || c.conn.closed() {
		return nil
	}
	return c.conn
}
