//go:build linux
// +build linux

package tcpsrv

import (
	"github.com/fzft/go-wcam/list"
	"sync"
	"time"
)

// connSet is the ordered set of live connections. A connection is removed exactly
// once; whoever removes it owns its teardown.
type connSet struct {
	mu     sync.Mutex
	conns  *list.List[*Conn]
	closed bool
}

func newConnSet() *connSet {
	return &connSet{conns: list.NewList[*Conn]()}
}

// add fails once the set has been drained.
func (cs *connSet) add(c *Conn) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return false
	}
	c.node = cs.conns.AddNodeTail(c)
	return true
}

func (cs *connSet) remove(c *Conn) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.conns.RemoveNode(c.node)
}

// expired removes and returns the connections idle for at least timeout.
func (cs *connSet) expired(now time.Time, timeout time.Duration) []*Conn {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var out []*Conn
	it := cs.conns.Iter(list.DirectionHead)
	for n := it.Advance(); n != nil; n = it.Advance() {
		if now.Sub(n.Value.LastActive()) >= timeout {
			cs.conns.RemoveNode(n)
			out = append(out, n.Value)
		}
	}
	return out
}

// drain empties the set for good.
func (cs *connSet) drain() []*Conn {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.closed = true
	out := cs.conns.Values()
	cs.conns.Empty()
	return out
}

func (cs *connSet) snapshot() []*Conn {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.conns.Values()
}

func (cs *connSet) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.conns.Len()
}
