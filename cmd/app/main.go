package main

import (
	"os"

	"trafficSOS/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		os.Exit(1)
	}
}
