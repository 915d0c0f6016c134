// db/pool.go
package db

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the shared connection pool against the clinical backend database.
var Pool *pgxpool.Pool

// Connect initializes the pool and fails fast if the database is unreachable.
func Connect(url string) {
	var err error
	Pool, err = pgxpool.New(context.Background(), url)
	if err != nil {
		log.Fatal("Error creating database pool:", err)
	}

	// Quick sanity check so a bad URL is caught at startup, not on the
	// first request.
	if err := Pool.Ping(context.Background()); err != nil {
		log.Fatal("Error pinging database:", err)
	}
	log.Println("Database pool connected")
}
