package main

import (
	"flag"
	"log"

	"github.com/abril-student/ranch-monitoring/internal/app"
	"github.com/abril-student/ranch-monitoring/internal/config"
)

func main() {
	configPath := flag.String("config", "ranch_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting ranch console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
