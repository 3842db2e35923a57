package cli

import (
	"fmt"

	"github.com/blacklanternsecurity/trevorproxy/internal/socks5"
)

// credentialsFrom builds a *socks5.Credentials, or nil when both fields are
// empty (no-auth only).
func credentialsFrom(username, password string) *socks5.Credentials {
	if username == "" && password == "" {
		return nil
	}
	return &socks5.Credentials{Username: username, Password: password}
}

func addrString(listenAddress string, port int) string {
	return fmt.Sprintf("%s:%d", listenAddress, port)
}
