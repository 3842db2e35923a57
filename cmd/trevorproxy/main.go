package main

import (
	"fmt"
	"os"

	"github.com/blacklanternsecurity/trevorproxy/internal/cli"
	"github.com/blacklanternsecurity/trevorproxy/internal/proxyerr"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	root := cli.NewRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true

	err := root.Execute()
	if err == nil {
		os.Exit(0)
	}

	kind := proxyerr.KindOf(err)
	if kind == proxyerr.KindUnknown {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Fprintf(os.Stderr, "[ERROR] %s: %s\n", kind, err)
	os.Exit(1)
}
