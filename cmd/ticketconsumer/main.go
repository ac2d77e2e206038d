package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, fmt.Errorf("failed to load .env: %w", err))
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "ticketconsumer",
		Usage: "Consume TicketBought events from Kafka into ClickHouse and Postgres",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the ticket consumer",
				Flags:  runFlags(),
				Action: run,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
