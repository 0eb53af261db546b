// check_db is an operator tool: it verifies the MongoDB connection and
// prints a quick overview of the collaboration collections.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"discussio-backend/internal/config"
	"discussio-backend/internal/database"
	"discussio-backend/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(&cfg.Mongo)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	whiteboards := db.Collection("whiteboards")

	total, err := whiteboards.CountDocuments(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to count whiteboards: %v", err)
	}
	active, err := whiteboards.CountDocuments(ctx, bson.M{"is_active": bson.M{"$ne": false}})
	if err != nil {
		log.Fatalf("Failed to count active whiteboards: %v", err)
	}

	fmt.Println("Whiteboard sessions:")
	fmt.Printf("  - Total: %d\n", total)
	fmt.Printf("  - Active: %d\n", active)
	fmt.Printf("  - Ended: %d\n", total-active)
	fmt.Println()

	streaks, err := db.Collection("group_streaks").CountDocuments(ctx, bson.M{})
	if err != nil {
		log.Fatalf("Failed to count streaks: %v", err)
	}
	fmt.Printf("Group streaks tracked: %d\n", streaks)
	fmt.Println()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(10)
	cursor, err := whiteboards.Find(ctx, bson.M{}, opts)
	if err != nil {
		log.Fatalf("Failed to list recent sessions: %v", err)
	}
	defer cursor.Close(ctx)

	var recent []store.Whiteboard
	if err := cursor.All(ctx, &recent); err != nil {
		log.Fatalf("Failed to decode sessions: %v", err)
	}

	fmt.Println("Recent sessions (last 10):")
	for _, wb := range recent {
		state := "active"
		if !wb.IsActive {
			state = "ended"
		}
		fmt.Printf("  - %s  %-24q  participants=%d  strokes=%d  %s\n",
			wb.HexID(), wb.Title, len(wb.Participants), len(wb.DrawingData), state)
	}
}
