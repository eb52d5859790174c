package relay

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nspcc-dev/wsbitcoin-go/pkg/btcrpc"
	"go.uber.org/zap"
)

// groups is a set of named session groups. Sessions join groups explicitly
// and leave all of them on disconnect.
type groups struct {
	lock    sync.RWMutex
	members map[string]map[*session]struct{}
	log     *zap.Logger
}

func newGroups(log *zap.Logger) *groups {
	return &groups{
		members: make(map[string]map[*session]struct{}),
		log:     log,
	}
}

// join adds the session to the group, it's a no-op for members.
func (g *groups) join(sess *session, groupID string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	m, ok := g.members[groupID]
	if !ok {
		m = make(map[*session]struct{})
		g.members[groupID] = m
	}
	m[sess] = struct{}{}
	sess.groups[groupID] = struct{}{}
}

// leaveAll removes the session from all of its groups, empty groups are
// dropped.
func (g *groups) leaveAll(sess *session) {
	g.lock.Lock()
	defer g.lock.Unlock()
	for id := range sess.groups {
		m := g.members[id]
		delete(m, sess)
		if len(m) == 0 {
			delete(g.members, id)
		}
	}
	sess.groups = make(map[string]struct{})
}

// size returns the number of group members.
func (g *groups) size(groupID string) int {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return len(g.members[groupID])
}

// broadcast sends the event to every group member without waiting for
// delivery. Members that can't keep up lose the event. It returns the number
// of sessions the event was queued for.
func (g *groups) broadcast(groupID string, event string, payload any) int {
	g.lock.RLock()
	defer g.lock.RUnlock()
	m := g.members[groupID]
	if len(m) == 0 {
		return 0
	}
	msg, err := prepareEvent(event, payload)
	if err != nil {
		g.log.Error("failed to prepare event message",
			zap.String("event", event),
			zap.Error(err))
		return 0
	}
	var queued int
	for sess := range m {
		select {
		case sess.writer <- msg:
			queued++
		default:
			droppedEvents.Inc()
			g.log.Warn("session notification buffer is full, event dropped",
				zap.String("session", sess.id),
				zap.String("event", event))
		}
	}
	return queued
}

func prepareEvent(event string, payload any) (*websocket.PreparedMessage, error) {
	m, err := btcrpc.NewMessage(event, payload)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, b)
}
