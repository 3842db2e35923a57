package netfilter

import (
	"context"
	"strings"

	"github.com/blacklanternsecurity/trevorproxy/internal/platform"
)

// CheckListeningPort returns true if something is listening on the given
// port string (e.g., ":32482"), used to probe SSH tunnel liveness without
// parsing ssh's own (unreliable) exit status.
func CheckListeningPort(ctx context.Context, port string) (bool, error) {
	out, err := platform.Run(ctx, "ss", "-ntlp")
	if err != nil {
		return false, err
	}
	return strings.Contains(out, port), nil
}
