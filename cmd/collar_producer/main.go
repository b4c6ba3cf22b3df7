// Copyright (c) 2026 The Ranch Monitoring Authors
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

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

	log.Println("starting collar producer (GPS to MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: the GPS UART usually needs the serial console disabled (raspi-config)")

	if err := app.RunCollarProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
