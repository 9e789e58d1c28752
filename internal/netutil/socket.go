package netutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrIPv6Unsupported is returned for any address family request beyond
// plain IPv4 TCP (Non-goal: IPv6 support).
var ErrIPv6Unsupported = errors.New("netutil: IPv6 is not supported")

// CreateNonblockingSocket opens a non-blocking, close-on-exec IPv4 TCP
// socket, mirroring sockets::create_non_blocking.
func CreateNonblockingSocket() (int, error) {
	return unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
}

// SetReuseAddr toggles SO_REUSEADDR.
func SetReuseAddr(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

// SetReusePort toggles SO_REUSEPORT.
func SetReusePort(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

// SetKeepAlive toggles SO_KEEPALIVE.
func SetKeepAlive(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

// SetNoDelay toggles TCP_NODELAY. Exposed per spec but not set by default.
func SetNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Bind binds fd to addr.
func Bind(fd int, addr Address) error {
	return unix.Bind(fd, addr.SockaddrInet4())
}

// Listen enters the listening state with the system's maximum backlog.
func Listen(fd int) error {
	return unix.Listen(fd, unix.SOMAXCONN)
}

// Accept accepts one pending connection, returning a non-blocking,
// close-on-exec connected fd and its peer address.
func Accept(listenFD int) (connFD int, peer Address, err error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, Address{}, err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		unix.Close(nfd)
		return -1, Address{}, ErrIPv6Unsupported
	}
	return nfd, FromSockaddrInet4(sa4), nil
}

// GetSockName resolves the local address bound to fd.
func GetSockName(fd int) (Address, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Address{}, err
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return Address{}, ErrIPv6Unsupported
	}
	return FromSockaddrInet4(sa4), nil
}

// ShutdownWrite half-closes the write side of fd (sends FIN).
func ShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

// SocketError reads and clears the pending error on fd via SO_ERROR.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}
