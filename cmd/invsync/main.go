// Command invsync runs the offline-first inventory sync engine.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/tbourn/go-inventory-sync/internal/cli"
)

// Version may be set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func effectiveVersion(v string) string {
	if v != "" && v != "dev" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return v
}

func main() {
	if err := cli.Execute(effectiveVersion(Version)); err != nil {
		fmt.Fprintln(os.Stderr, "invsync:", err)
		os.Exit(1)
	}
}
