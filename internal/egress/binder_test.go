package egress

import (
	"io"
	"log/slog"
	"testing"
)

func TestNextSourceDistinctWithinCycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := New("10.9.0.0/28", "lo", nil, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := make(map[string]struct{})
	for i := 0; i < 14; i++ {
		addr := b.NextSource()
		if !addr.IsValid() {
			t.Fatalf("NextSource returned invalid address at %d", i)
		}
		seen[addr.String()] = struct{}{}
	}
	if len(seen) != 14 {
		t.Fatalf("expected 14 distinct sources in one cycle, got %d", len(seen))
	}
}

func TestVersionMatchesSubnetFamily(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	v4, err := New("10.9.0.0/28", "lo", nil, logger)
	if err != nil {
		t.Fatalf("New(v4): %v", err)
	}
	if v4.Version() != 4 {
		t.Errorf("expected version 4, got %d", v4.Version())
	}

	v6, err := New("fd00::/64", "lo", nil, logger)
	if err != nil {
		t.Fatalf("New(v6): %v", err)
	}
	if v6.Version() != 6 {
		t.Errorf("expected version 6, got %d", v6.Version())
	}
}
