// Package main provides the entry point for trafficguard.
//
// trafficguard runs as a systemd service on hosts behind a metered link. It
// counts the traffic of one interface against a data cap that resets on a
// schedule and powers the host off once the cap is reached.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/shini4i/trafficguard/internal/config"
)

var (
	version = "dev"
)

func main() {
	if path := envFileFromArgs(os.Args[1:]); path != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: load env file: %v\n", config.AppName, err)
			os.Exit(1)
		}
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name(config.AppName),
		kong.Description("Powers the host off when an interface exceeds its data cap."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", config.AppName, err)
		os.Exit(1)
	}
}

// envFileFromArgs finds --env-file before kong parses, so the file can feed
// the TRAFFICGUARD_* variables kong resolves.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return os.Getenv(envPrefix + "ENV_FILE")
		case arg == "--env-file" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--env-file="):
			return strings.TrimPrefix(arg, "--env-file=")
		}
	}
	return os.Getenv(envPrefix + "ENV_FILE")
}
