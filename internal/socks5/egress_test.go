package socks5

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/blacklanternsecurity/trevorproxy/internal/egress"
)

func TestSubnetDialerBindsMatchingFamily(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	binder, err := egress.New("127.0.0.0/8", "lo", nil, discardLogger())
	if err != nil {
		t.Fatalf("new binder: %v", err)
	}

	d := &SubnetDialer{Binder: binder, Logger: discardLogger()}
	lnAddr := ln.Addr().(*net.TCPAddr)
	target := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(lnAddr.Port))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, "tcp", target)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestSubnetDialerFallsBackOnFamilyMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	binder, err := egress.New("fd00::/64", "lo", nil, discardLogger())
	if err != nil {
		t.Fatalf("new binder: %v", err)
	}

	d := &SubnetDialer{Binder: binder, Logger: discardLogger()}
	lnAddr := ln.Addr().(*net.TCPAddr)
	target := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), uint16(lnAddr.Port))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := d.Dial(ctx, "tcp", target)
	if err != nil {
		t.Fatalf("expected fallback dial to succeed without bind, got %v", err)
	}
	conn.Close()
}
