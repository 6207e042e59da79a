package main

import (
	"log"

	"github.com/trimbox/trimbox/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ trimbox failed to start: %v", err)
	}
}
