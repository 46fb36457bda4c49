// Package main is the liveclass-service entry point (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/peerloom/liveclass-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
