package core

import "sync"

// Room pairs the creating client (mom) with at most one joining client (dad).
//
// mu guards the protocol state of both members' connections and the dad slot.
// mom never changes. Writes to dad also hold Hub.mu.
type Room struct {
	ID string

	mom *Client

	mu        sync.Mutex
	dad       *Client
	destroyed bool // Hub.mu
}

func newRoom(id string, mom *Client) *Room {
	return &Room{ID: id, mom: mom}
}

// Mom returns the creator of the room.
func (r *Room) Mom() *Client {
	return r.mom
}

// Dad returns the joining client, or nil while the slot is empty.
func (r *Room) Dad() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dad
}

// OpponentOf returns the other member. The result is nil while dad is missing.
func (r *Room) OpponentOf(c *Client) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opponentOf(c)
}

func (r *Room) opponentOf(c *Client) (*Client, error) {
	switch c {
	case r.mom:
		return r.dad, nil
	case r.dad:
		if c != nil {
			return r.mom, nil
		}
	}
	return nil, ErrNotMember
}

func (r *Room) isMom(c *Client) bool {
	return c == r.mom
}

func (r *Room) hasMember(c *Client) bool {
	return c == r.mom || (c != nil && c == r.dad)
}

// join admits c. It is a no-op for mom and for the current dad.
// Caller holds Hub.mu.
func (r *Room) join(c *Client) error {
	if c == r.mom {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.dad {
	case nil:
		r.dad = c
		return nil
	case c:
		return nil
	default:
		return ErrRoomFull
	}
}
