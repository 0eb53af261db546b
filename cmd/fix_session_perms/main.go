// fix_session_perms is an operator tool: it normalizes whiteboard session
// documents. The creator holds every capability implicitly, so a creator id
// inside a grant list is redundant and confuses permission snapshots; older
// documents may also miss the grant arrays entirely.
package main

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"discussio-backend/internal/config"
	"discussio-backend/internal/database"
)

var grantFields = []string{"can_draw", "can_speak", "can_share_screen", "raised_hands", "participants"}

func main() {
	cfg := config.Load()

	db, err := database.Connect(&cfg.Mongo)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Database connected. Starting session permission fix...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	whiteboards := db.Collection("whiteboards")

	// 1. Backfill missing array fields so atomic array updates always apply
	for _, field := range grantFields {
		res, err := whiteboards.UpdateMany(ctx,
			bson.M{field: bson.M{"$exists": false}},
			bson.M{"$set": bson.M{field: []primitive.ObjectID{}}},
		)
		if err != nil {
			log.Fatalf("Failed to backfill %s: %v", field, err)
		}
		if res.ModifiedCount > 0 {
			log.Printf("Backfilled %s on %d sessions", field, res.ModifiedCount)
		}
	}

	// 2. Strip creators from their own grant lists
	cursor, err := whiteboards.Find(ctx, bson.M{}, nil)
	if err != nil {
		log.Fatalf("Failed to list sessions: %v", err)
	}
	defer cursor.Close(ctx)

	fixed := 0
	for cursor.Next(ctx) {
		var doc struct {
			ID        primitive.ObjectID `bson:"_id"`
			CreatedBy primitive.ObjectID `bson:"created_by"`
		}
		if err := cursor.Decode(&doc); err != nil {
			log.Printf("Skipping undecodable session: %v", err)
			continue
		}

		res, err := whiteboards.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{
			"$pull": bson.M{
				"can_draw":         doc.CreatedBy,
				"can_speak":        doc.CreatedBy,
				"can_share_screen": doc.CreatedBy,
			},
		})
		if err != nil {
			log.Printf("Failed to clean session %s: %v", doc.ID.Hex(), err)
			continue
		}
		if res.ModifiedCount > 0 {
			log.Printf("Removed creator from grant lists of session %s", doc.ID.Hex())
			fixed++
		}
	}
	if err := cursor.Err(); err != nil {
		log.Fatalf("Cursor error: %v", err)
	}

	log.Printf("Session permissions successfully updated (%d sessions cleaned).", fixed)
}
