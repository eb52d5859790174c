package relay

import (
	"github.com/gorilla/websocket"
)

// session is a connected websocket client.
type session struct {
	id string
	// writer is drained by the client's write routine. It's never closed.
	writer chan *websocket.PreparedMessage
	// groups the session is a member of, protected by groups lock.
	groups map[string]struct{}
}

func newSession(id string) *session {
	return &session{
		id:     id,
		writer: make(chan *websocket.PreparedMessage, notificationBufSize),
		groups: make(map[string]struct{}),
	}
}
