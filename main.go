package main

import (
	"feedboard-backend/internal/config"
	"feedboard-backend/internal/server"

	"github.com/labstack/gommon/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	s := server.New(cfg)
	if err := s.Initialize(); err != nil {
		s.Echo.Logger.Fatal(err)
	}

	s.Echo.Logger.Fatal(s.Start())
}
