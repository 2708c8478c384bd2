// The migrate binary applies the SQL files in migrations/ in name order.
// With -check it instead compares the live schema against the expected
// table set and reports what is missing, without changing anything.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// expectedColumns is the schema contract the application code assumes.
var expectedColumns = map[string][]string{
	"databases": {
		"id", "name", "description", "street", "city", "state", "zip_code",
		"county", "website", "phone", "fax_number", "key_contact_name",
		"key_contact_phone", "key_contact_email", "social_links",
		"created_at", "updated_at",
	},
	"subscribers": {
		"id", "database_id", "email", "name", "external_id", "notes",
		"subscribed_at", "unsubscribed_at", "created_at", "updated_at",
	},
	"tags":            {"id", "database_id", "name"},
	"subscriber_tags": {"subscriber_id", "tag_id"},
	"campaigns": {
		"id", "database_id", "subject", "body", "status", "sent_at",
		"scheduled_at", "recipient_count", "recipients", "target",
		"created_at", "updated_at",
	},
	"settings": {"key", "value"},
}

func main() {
	check := flag.Bool("check", false, "compare live schema against the expected one, apply nothing")
	dir := flag.String("dir", "migrations", "migrations directory")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if *check {
		if problems := checkSchema(db); len(problems) > 0 {
			for _, p := range problems {
				fmt.Println("  MISSING:", p)
			}
			log.Fatalf("Schema check failed: %d problems", len(problems))
		}
		log.Println("Schema check passed")
		return
	}

	applyMigrations(db, *dir)
}

func applyMigrations(db *sql.DB, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.Exec(string(data)); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else {
			tx.Commit()
			fmt.Println("OK")
			okCount++
		}
	}
	log.Printf("Done: %d OK, %d errors", okCount, errCount)
}

// checkSchema reads information_schema and reports every expected table or
// column the live database lacks.
func checkSchema(db *sql.DB) []string {
	rows, err := db.Query(`
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
	`)
	if err != nil {
		log.Fatalf("query information_schema: %v", err)
	}
	defer rows.Close()

	live := map[string]map[string]bool{}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			log.Fatalf("scan: %v", err)
		}
		if live[table] == nil {
			live[table] = map[string]bool{}
		}
		live[table][column] = true
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("read information_schema: %v", err)
	}

	var problems []string
	var tables []string
	for t := range expectedColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, table := range tables {
		cols, ok := live[table]
		if !ok {
			problems = append(problems, "table "+table)
			continue
		}
		for _, col := range expectedColumns[table] {
			if !cols[col] {
				problems = append(problems, "column "+table+"."+col)
			}
		}
	}
	return problems
}
