// Operator tool: deletes completed event records older than a cutoff
// straight from the database, for installations where the HTTP agent is
// not reachable.
//
//	DATABASE_URL=postgres://... go run ./cmd/admin -max-age 48h [-dry-run]
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	maxAge := flag.Duration("max-age", 24*time.Hour, "delete completed records older than this")
	dryRun := flag.Bool("dry-run", false, "report what would be deleted without deleting")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cutoff := time.Now().UTC().Add(-*maxAge)

	if *dryRun {
		var n int
		err := db.QueryRow(`
			SELECT count(*) FROM records
			WHERE tags->>'state' IN ('success', 'failure') AND created_at < $1
		`, cutoff).Scan(&n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "count records: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("would delete %d completed records older than %s\n", n, *maxAge)
		return
	}

	res, err := db.Exec(`
		DELETE FROM records
		WHERE tags->>'state' IN ('success', 'failure') AND created_at < $1
	`, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "delete records: %v\n", err)
		os.Exit(1)
	}
	n, _ := res.RowsAffected()
	fmt.Printf("deleted %d completed records older than %s\n", n, *maxAge)
}
