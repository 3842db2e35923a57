package dns

import "testing"

func TestNewResolverAppendsDefaultPort(t *testing.T) {
	r := NewResolver("1.1.1.1")
	if r.Server != "1.1.1.1:53" {
		t.Errorf("expected default port appended, got %q", r.Server)
	}

	r2 := NewResolver("127.0.0.1:5353")
	if r2.Server != "127.0.0.1:5353" {
		t.Errorf("expected explicit port preserved, got %q", r2.Server)
	}
}
