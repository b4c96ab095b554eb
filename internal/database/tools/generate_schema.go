// Command generate_schema flattens the property-store migrations into
// internal/database/schema.sql, which tests load directly.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"eni-go/internal/database"
	"eni-go/internal/database/migrations"
)

const header = `-- This file is auto-generated from migration files.
-- DO NOT EDIT MANUALLY. Run 'go generate ./internal/database' to regenerate.
-- Source: internal/database/migrations/files/*.sql

`

func main() {
	out := flag.String("o", "internal/database/schema.sql", "output file")
	flag.Parse()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db); err != nil {
		log.Fatalf("migrating: %v", err)
	}

	stmts, err := schemaStatements(db)
	if err != nil {
		log.Fatalf("reading schema: %v", err)
	}

	if err := os.WriteFile(*out, []byte(header+strings.Join(stmts, "\n\n")+"\n"), 0644); err != nil {
		log.Fatalf("writing %s: %v", *out, err)
	}
	fmt.Printf("generated %s (%d statements)\n", *out, len(stmts))
}

// schemaStatements returns the CREATE statements of every user table and
// index, tables first. The migration bookkeeping table is skipped.
func schemaStatements(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT sql || ';' FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY type = 'index', name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, rows.Err()
}
