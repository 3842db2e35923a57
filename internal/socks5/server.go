// Package socks5 implements the SOCKS5 server: connection acceptance, the
// RFC 1928/1929 handshake, target resolution, egress selection via a
// pluggable Dialer, and the full-duplex relay.
package socks5

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/blacklanternsecurity/trevorproxy/internal/dns"
	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

// Server is a SOCKS5 listener that serves every accepted connection in its
// own goroutine, dispatching egress through a Dialer.
type Server struct {
	ListenAddr string
	Dialer     Dialer
	Resolver   *dns.Resolver
	Creds      *Credentials
	PreferV6   bool
	Logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a Server; call Serve to start accepting connections.
func NewServer(listenAddr string, dialer Dialer, resolver *dns.Resolver, creds *Credentials, preferV6 bool, logger *slog.Logger) *Server {
	return &Server{
		ListenAddr: listenAddr,
		Dialer:     dialer,
		Resolver:   resolver,
		Creds:      creds,
		PreferV6:   preferV6,
		Logger:     logger,
	}
}

// Serve binds the listener and accepts connections until ctx is canceled or
// Shutdown is called, blocking until the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.ListenAddr)
	if err != nil {
		return proxyerr.Wrapf(err, proxyerr.KindInternal, "failed to listen on %s", s.ListenAddr)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.Logger.Info(fmt.Sprintf("Listening on socks5://%s", ln.Addr()))

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			return proxyerr.Wrap(err, proxyerr.KindInternal, "accept failed")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess := newSession(conn, s.Logger, s.Resolver, s.Dialer, s.Creds, s.PreferV6)
			sess.run(ctx)
		}()
	}
}

// Shutdown closes the listening socket. In-flight sessions are not force
// closed; they terminate on their next I/O error.
func (s *Server) Shutdown() {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}
