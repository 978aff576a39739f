package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	// Optional .env next to the working directory; real env always wins.
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Name = "remindq"
	app.HelpName = "remindq"
	app.Usage = "schedule, list, and fire one-shot reminders against an agent session"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "path to the config file (yaml or json)",
			EnvVar: "REMINDQ_CONFIG",
			Value:  "./remindq.yaml",
		},
		cli.StringFlag{
			Name:  "lock",
			Usage: "lock mode override: auto, none, always",
		},
		cli.StringFlag{
			Name:  "timezone, z",
			Usage: "display timezone override (IANA name)",
		},
		cli.BoolFlag{
			Name:  "json",
			Usage: "machine-readable output",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "put",
			Usage:     "schedule a new reminder",
			UsageText: "remindq put --at <rfc3339> --message <text> --session <url> [--cc <target>...]",
			Action:    putAction,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "at, a",
					Usage: "absolute remind time with offset, e.g. 2026-09-02T09:00:00+02:00",
				},
				cli.StringFlag{
					Name:  "message, m",
					Usage: "reminder text, delivered verbatim",
				},
				cli.StringFlag{
					Name:  "session, s",
					Usage: "target agent session reference (URL)",
				},
				cli.StringSliceFlag{
					Name:  "cc",
					Usage: "notification recipient to tag (repeatable)",
				},
			},
		},
		{
			Name:   "list",
			Usage:  "show the stored queue and its due subset",
			Action: listAction,
		},
		{
			Name:   "cron",
			Usage:  "fire due reminders and retire the delivered ones",
			Action: cronAction,
		},
		{
			Name:   "serve",
			Usage:  "run resident, firing cron ticks on a schedule",
			Action: serveAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "remindq: %s\n", err)
		os.Exit(1)
	}
}
