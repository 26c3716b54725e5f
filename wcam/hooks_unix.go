//go:build linux
// +build linux

package wcam

import (
	"github.com/fzft/go-wcam/log"
	"github.com/fzft/go-wcam/tcpsrv"
	"go.uber.org/zap"
)

func (p *Protocol) OnConnect(c *tcpsrv.Conn) error {
	c.SetContext(newSession(c))
	log.Logger.Info("client connected", zap.String("id", c.ID()), zap.Stringer("peer", c.RemoteAddr()))
	return nil
}

// OnReceive reads at most up to the end of the current frame, so one call
// dispatches at most one request.
func (p *Protocol) OnReceive(c *tcpsrv.Conn) (int, error) {
	s := c.Context().(*Session)
	n, err := c.Read(s.acc.Buf())
	if err != nil || n == 0 {
		return n, err
	}
	if s.acc.Advance(n) {
		if err := p.dispatch(s); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (p *Protocol) OnDisconnect(c *tcpsrv.Conn) {
	log.Logger.Info("client disconnected", zap.String("id", c.ID()), zap.Stringer("peer", c.RemoteAddr()))
	c.SetContext(nil)
}
