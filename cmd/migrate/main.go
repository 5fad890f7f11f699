package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// Bootstraps the FieldQC schema: applies the numbered .sql files under
// migrations/ in order, one transaction per file.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/migrate [dir]
//	DATABASE_URL=postgres://... go run ./cmd/migrate --list
//
// --list prints the installed qc_* tables instead of applying anything.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}

	if listOnly {
		if err := listSchema(db); err != nil {
			log.Fatalf("list schema: %v", err)
		}
		return
	}

	failed, err := applyDir(db, dir)
	if err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	if failed > 0 {
		log.Fatalf("Schema incomplete: %d migration(s) failed", failed)
	}
	log.Println("FieldQC schema ready")
}

// applyDir runs every .sql file in dir in lexical order and returns how many
// failed. A failed file rolls back alone; later files still run, since the
// numbered migrations are independent by convention.
func applyDir(db *sql.DB, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	log.Printf("Applying %d migration file(s) from %s", len(files), dir)

	failed := 0
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return failed, fmt.Errorf("read %s: %w", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return failed, fmt.Errorf("begin %s: %w", f, err)
		}
		if _, err := tx.Exec(string(data)); err != nil {
			tx.Rollback()
			log.Printf("  %s: FAILED: %v", f, err)
			failed++
			continue
		}
		if err := tx.Commit(); err != nil {
			return failed, fmt.Errorf("commit %s: %w", f, err)
		}
		log.Printf("  %s: applied", f)
	}
	return failed, nil
}

// listSchema prints the pipeline's tables so operators can eyeball what a
// target database already has before applying anything.
func listSchema(db *sql.DB) error {
	rows, err := db.Query(`
		SELECT tablename
		FROM pg_tables
		WHERE schemaname = 'public' AND tablename LIKE 'qc\_%'
		ORDER BY tablename
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	want := map[string]bool{
		"qc_assignments": false,
		"qc_batches":     false,
		"qc_configs":     false,
		"qc_responses":   false,
		"qc_workers":     false,
	}
	n := 0
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		if _, expected := want[t]; expected {
			want[t] = true
		}
		fmt.Println(" ", t)
		n++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var missing []string
	for t, present := range want {
		if !present {
			missing = append(missing, t)
		}
	}
	sort.Strings(missing)
	fmt.Printf("Total: %d tables\n", n)
	if len(missing) > 0 {
		fmt.Printf("Missing: %s (run the migrations)\n", strings.Join(missing, ", "))
	}
	return nil
}
