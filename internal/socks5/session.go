package socks5

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"net/netip"

	"github.com/blacklanternsecurity/trevorproxy/internal/dns"
	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

const relayBufferSize = 4096

// Credentials is the single optional username/password pair a server may
// require during RFC 1929 sub-negotiation. A nil *Credentials (or one with
// both fields empty) means no-auth only.
type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) configured() bool {
	return c != nil && (c.Username != "" || c.Password != "")
}

func (c *Credentials) matches(user, pass string) bool {
	return c != nil && user == c.Username && pass == c.Password
}

// session carries the per-connection state of one SOCKS5 handshake and its
// relay: the client socket, negotiated credentials, and the parsed target.
type session struct {
	conn     net.Conn
	r        *bufio.Reader
	logger   *slog.Logger
	resolver *dns.Resolver
	dialer   Dialer
	creds    *Credentials
	preferV6 bool
}

func newSession(conn net.Conn, logger *slog.Logger, resolver *dns.Resolver, dialer Dialer, creds *Credentials, preferV6 bool) *session {
	return &session{
		conn:     conn,
		r:        bufio.NewReader(conn),
		logger:   logger,
		resolver: resolver,
		dialer:   dialer,
		creds:    creds,
		preferV6: preferV6,
	}
}

// run drives one client connection end to end: greeting, optional
// sub-negotiation, request parsing, dial, reply, relay. All failures are
// logged here; run never panics the caller's goroutine.
func (s *session) run(ctx context.Context) {
	defer s.conn.Close()

	if err := s.greet(); err != nil {
		s.logger.Debug("socks5 greeting failed", "remote", s.conn.RemoteAddr(), "error", err)
		return
	}

	target, atyp, err := s.readRequest()
	if err != nil {
		s.logger.Debug("socks5 request failed", "remote", s.conn.RemoteAddr(), "error", err)
		return
	}

	addr, err := s.resolveTarget(ctx, target)
	if err != nil {
		s.logger.Warn("socks5 target resolution failed", "target", target.host, "error", err)
		s.sendFailure(atyp)
		return
	}

	upstream, err := s.dialer.Dial(ctx, "tcp", netip.AddrPortFrom(addr, target.port))
	if err != nil {
		s.logger.Warn("socks5 upstream dial failed", "target", target.host, "address", addr, "error", err)
		s.sendFailure(atyp)
		return
	}
	defer upstream.Close()

	boundPort := uint16(0)
	if tcpAddr, ok := upstream.LocalAddr().(*net.TCPAddr); ok {
		boundPort = uint16(tcpAddr.Port)
	}
	if err := s.sendSuccess(boundPort); err != nil {
		s.logger.Debug("socks5 reply write failed", "error", err)
		return
	}

	s.relay(upstream)
}

// greet reads the method-selection message and replies, running RFC 1929
// sub-negotiation when user/pass is offered and credentials are configured.
func (s *session) greet() error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(s.r, header); err != nil {
		return proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on greeting header")
	}
	if header[0] != version5 {
		return proxyerr.Errorf(proxyerr.KindSocksProtocol, "unsupported socks version %#x", header[0])
	}

	methods := make([]byte, header[1])
	if _, err := io.ReadFull(s.r, methods); err != nil {
		return proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on method list")
	}

	wantAuth := s.creds.configured() && containsByte(methods, methodUserPass)
	if wantAuth {
		if _, err := s.conn.Write([]byte{version5, methodUserPass}); err != nil {
			return err
		}
		return s.authenticate()
	}

	_, err := s.conn.Write([]byte{version5, methodNoAuth})
	return err
}

func containsByte(haystack []byte, b byte) bool {
	for _, v := range haystack {
		if v == b {
			return true
		}
	}
	return false
}

// authenticate runs the RFC 1929 username/password sub-negotiation.
func (s *session) authenticate() error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(s.r, header); err != nil {
		return proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on auth header")
	}
	if header[0] != authVersion1 {
		return proxyerr.Errorf(proxyerr.KindSocksProtocol, "unsupported auth version %#x", header[0])
	}

	user := make([]byte, header[1])
	if _, err := io.ReadFull(s.r, user); err != nil {
		return proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on username")
	}

	var passLen [1]byte
	if _, err := io.ReadFull(s.r, passLen[:]); err != nil {
		return proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on password length")
	}
	pass := make([]byte, passLen[0])
	if _, err := io.ReadFull(s.r, pass); err != nil {
		return proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on password")
	}

	if !s.creds.matches(string(user), string(pass)) {
		_ = s.writeAuthFailure()
		return proxyerr.New(proxyerr.KindSocksProtocol, "invalid credentials")
	}
	_, err := s.conn.Write([]byte{authVersion1, authSuccess})
	return err
}

// target is a parsed CONNECT destination, kept in both its wire form (host,
// a literal or a hostname) and its port for dialing after resolution.
type target struct {
	host string
	port uint16
}

// readRequest reads VER/CMD/RSV/ATYP and the address/port that follow,
// returning a target and the ATYP byte (needed to shape a failure reply).
func (s *session) readRequest() (target, byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(s.r, header); err != nil {
		return target{}, 0, proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on request header")
	}
	if header[0] != version5 {
		return target{}, header[3], proxyerr.Errorf(proxyerr.KindSocksProtocol, "unsupported socks version %#x", header[0])
	}
	if header[1] != cmdConnect {
		return target{}, header[3], proxyerr.Errorf(proxyerr.KindSocksProtocol, "unsupported command %#x", header[1])
	}
	atyp := header[3]

	var host string
	switch atyp {
	case atypIPv4:
		raw := make([]byte, 4)
		if _, err := io.ReadFull(s.r, raw); err != nil {
			return target{}, atyp, proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on ipv4 address")
		}
		addr, _ := netip.AddrFromSlice(raw)
		host = addr.String()
	case atypIPv6:
		raw := make([]byte, 16)
		if _, err := io.ReadFull(s.r, raw); err != nil {
			return target{}, atyp, proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on ipv6 address")
		}
		addr, _ := netip.AddrFromSlice(raw)
		host = addr.String()
	case atypDomain:
		var length [1]byte
		if _, err := io.ReadFull(s.r, length[:]); err != nil {
			return target{}, atyp, proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on domain length")
		}
		raw := make([]byte, length[0])
		if _, err := io.ReadFull(s.r, raw); err != nil {
			return target{}, atyp, proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on domain name")
		}
		host = string(raw)
	default:
		return target{}, atyp, proxyerr.Errorf(proxyerr.KindSocksProtocol, "unsupported address type %#x", atyp)
	}

	var portBytes [2]byte
	if _, err := io.ReadFull(s.r, portBytes[:]); err != nil {
		return target{}, atyp, proxyerr.Wrap(err, proxyerr.KindSocksProtocol, "short read on port")
	}

	return target{host: host, port: binary.BigEndian.Uint16(portBytes[:])}, atyp, nil
}

// resolveTarget turns an ip-literal or hostname target into a concrete
// address, consulting DNS with family preference for hostnames.
func (s *session) resolveTarget(ctx context.Context, t target) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(t.host); err == nil {
		return addr, nil
	}
	addrs, err := s.resolver.ResolvePreferred(ctx, t.host, s.preferV6)
	if err != nil {
		return netip.Addr{}, proxyerr.Wrapf(err, proxyerr.KindResolution, "failed to resolve %s", t.host)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, proxyerr.Errorf(proxyerr.KindResolution, "no addresses returned for %s", t.host)
	}
	return addrs[0], nil
}

// sendSuccess writes the success reply. The address field is always
// serialized as a zeroed 4-byte IPv4 value regardless of the bound
// socket's actual family; only boundPort carries real information.
func (s *session) sendSuccess(boundPort uint16) error {
	reply := make([]byte, 10)
	reply[0] = version5
	reply[1] = replySucceeded
	reply[2] = 0x00
	reply[3] = atypIPv4
	binary.BigEndian.PutUint16(reply[8:10], boundPort)
	_, err := s.conn.Write(reply)
	return err
}

// sendFailure writes a connection-refused reply, echoing the request's
// original ATYP byte with a zeroed address and port.
func (s *session) sendFailure(atyp byte) {
	reply := []byte{version5, replyConnRefused, 0x00, atyp, 0, 0, 0, 0, 0, 0}
	_, _ = s.conn.Write(reply)
}

func (s *session) writeAuthFailure() error {
	_, err := s.conn.Write([]byte{authVersion1, authFailure})
	return err
}

// relay pumps bytes between the client and upstream sockets until either
// side reaches EOF, then closes both halves.
func (s *session) relay(upstream net.Conn) {
	done := make(chan struct{}, 2)
	pump := func(dst, src net.Conn) {
		buf := make([]byte, relayBufferSize)
		io.CopyBuffer(dst, src, buf)
		done <- struct{}{}
	}
	go pump(upstream, s.conn)
	go pump(s.conn, upstream)
	<-done
}
