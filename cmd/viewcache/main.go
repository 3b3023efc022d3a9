// Command viewcache replays debugger view scenarios against a simulated
// target and load-tests the view cache.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

var version = "dev"

// Globals are flags shared by every command.
type Globals struct {
	EnvFile []string `help:"Dotenv files to load before reading the environment." name:"env-file" default:".env"`
}

// CLI is the top-level command structure for viewcache.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version." short:"V"`
	Run     RunCmd           `cmd:"" help:"Replay a scenario file against the simulated target."`
	Bench   BenchCmd         `cmd:"" help:"Run a concurrent workload and export Prometheus metrics."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("viewcache"),
		kong.Description("Request cache for debugger views."),
		kong.Vars{"version": version},
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
