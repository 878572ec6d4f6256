// activitysync CLI entry point
//
// activitysync copies cycling activities recorded on iGPSport to Garmin
// Connect. It is meant to be run periodically by an external scheduler.
package main

import (
	"os"

	"github.com/jbctechsolutions/activitysync/internal/presentation/cli/commands"
)

func main() {
	os.Exit(commands.Execute())
}
