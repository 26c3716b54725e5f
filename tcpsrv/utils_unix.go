//go:build linux
// +build linux

package tcpsrv

import (
	"errors"
	"golang.org/x/sys/unix"
	"net"
)

// IsTemporary reports errors after which the socket is still usable, e.g. EAGAIN.
func IsTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// isAcceptRetryable covers accept failures that only concern the pending peer.
func isAcceptRetryable(err error) bool {
	return IsTemporary(err) || errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EPROTO)
}

func isFDValid(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func closeFd(fd int) error {
	if !isFDValid(fd) {
		return nil
	}
	return unix.Close(fd)
}

func sockaddrToTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3]), Port: addr.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, addr.Addr[:])
		return &net.TCPAddr{IP: ip, Port: addr.Port}
	}
	return &net.TCPAddr{}
}
