package main

import (
	"os"

	"github.com/picc-digital/storyline/internal/storylineservice"
)

func main() {
	if err := storylineservice.Run(); err != nil {
		os.Exit(1)
	}
}
