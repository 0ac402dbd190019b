// migrate applies the embedded case store migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"trafficSOS/internal/config"
	"trafficSOS/internal/storage/postgres"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg := config.LoadPostgres()
	if err := postgres.Migrate(cfg.DSN(), *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
