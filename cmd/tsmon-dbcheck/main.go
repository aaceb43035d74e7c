package main

import (
	"fmt"
	"log"
	"os"

	"tsnetmon/internal/server"
)

func main() {
	dbPath := os.Getenv("TSMON_DB_PATH")
	if dbPath == "" {
		dbPath = "./data/tsnetmon.db"
	}

	db, err := server.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' ORDER BY name;`)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	fmt.Println("Tables:")
	for rows.Next() {
		var name string
		_ = rows.Scan(&name)
		fmt.Println(" -", name)
	}

	for _, table := range []string{"agents", "metrics", "connections"} {
		var n int
		_ = db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n)
		fmt.Printf("%s: %d rows\n", table, n)
	}
}
