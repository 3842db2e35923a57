package socks5

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/blacklanternsecurity/trevorproxy/internal/dns"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubDialer returns a fixed connection (or error) regardless of target,
// recording the last requested target for assertions.
type stubDialer struct {
	conn   net.Conn
	err    error
	target netip.AddrPort
}

func (d *stubDialer) Dial(_ context.Context, _ string, target netip.AddrPort) (net.Conn, error) {
	d.target = target
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func TestBadVersionClosesWithoutReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sess := newSession(server, discardLogger(), dns.NewResolver("127.0.0.1:1"), &stubDialer{}, nil, false)
	done := make(chan struct{})
	go func() {
		sess.run(context.Background())
		close(done)
	}()

	client.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := client.Write([]byte{0x04, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected no reply bytes and a closed connection, got n=%d err=%v", n, err)
	}
	<-done
}

func TestGreetNoAuthWhenNoCredentialsConfigured(t *testing.T) {
	upstreamClient, upstreamServer := net.Pipe()
	defer upstreamClient.Close()
	defer upstreamServer.Close()

	client, server := net.Pipe()
	defer client.Close()

	dialer := &stubDialer{conn: upstreamServer}
	sess := newSession(server, discardLogger(), dns.NewResolver("127.0.0.1:1"), dialer, nil, false)
	go sess.run(context.Background())

	client.SetDeadline(time.Now().Add(time.Second))
	if _, err := client.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		t.Fatalf("write greeting: %v", err)
	}
	greetReply := make([]byte, 2)
	if _, err := io.ReadFull(client, greetReply); err != nil {
		t.Fatalf("read greeting reply: %v", err)
	}
	if greetReply[0] != version5 || greetReply[1] != methodNoAuth {
		t.Fatalf("expected no-auth accepted, got % x", greetReply)
	}

	// send CONNECT request for an IPv4 literal.
	req := []byte{0x05, cmdConnect, 0x00, atypIPv4, 93, 184, 216, 34, 0x00, 0x50}
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reply := make([]byte, 10)
	if _, err := io.ReadFull(client, reply); err != nil {
		t.Fatalf("read connect reply: %v", err)
	}
	if reply[0] != version5 || reply[1] != replySucceeded {
		t.Fatalf("expected success reply, got % x", reply)
	}
	if reply[3] != atypIPv4 {
		t.Fatalf("expected reply address field shaped as ipv4, got atyp %#x", reply[3])
	}
	for _, b := range reply[4:8] {
		if b != 0 {
			t.Fatalf("expected zeroed reply address bytes, got % x", reply[4:8])
		}
	}

	wantAddr := netip.MustParseAddr("93.184.216.34")
	if dialer.target.Addr() != wantAddr || dialer.target.Port() != 80 {
		t.Fatalf("dialer received unexpected target %v", dialer.target)
	}
}

func TestHostnameResolutionFailureReply(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	resolver := dns.NewResolver("127.0.0.1:1")
	resolver.Timeout = 200 * time.Millisecond

	sess := newSession(server, discardLogger(), resolver, &stubDialer{}, nil, false)
	go sess.run(context.Background())

	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte{0x05, 0x01, 0x00})
	io.ReadFull(client, make([]byte, 2))

	domain := "no.such.host.invalid"
	req := []byte{0x05, cmdConnect, 0x00, atypDomain, byte(len(domain))}
	req = append(req, domain...)
	req = append(req, 0x00, 0x50)
	if _, err := client.Write(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reply := make([]byte, 10)
	if _, err := io.ReadFull(client, reply); err != nil {
		t.Fatalf("read failure reply: %v", err)
	}
	want := []byte{0x05, replyConnRefused, 0x00, atypDomain, 0, 0, 0, 0, 0, 0}
	for i := range want {
		if reply[i] != want[i] {
			t.Fatalf("failure reply mismatch: got % x want % x", reply, want)
		}
	}
}
