package main

import (
	"log"

	"discussio-backend/internal/config"
	"discussio-backend/internal/database"
	"discussio-backend/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(&cfg.Mongo)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing MongoDB connection: %v", err)
		}
	}()

	if err := db.CreateIndexes(); err != nil {
		log.Printf("Warning: failed to create indexes: %v", err)
	}

	srv := server.New(cfg, db)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
