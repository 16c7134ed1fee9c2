package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"

	"github.com/yourorg/reviewflow/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var ok bool
	switch command {
	case "migrate":
		ok = runMigrate(args)
	case "check-schema":
		ok = runCheckSchema()
	case "diagnose-user":
		ok = runDiagnoseUser(args)
	case "smoke-test":
		ok = runSmokeTest(args)
	case "env-check":
		ok = runEnvCheck()
	case "help":
		printUsage()
		ok = true
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
	}

	if !ok {
		os.Exit(1)
	}
}

func openDB() (*sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// runMigrate applies pending .sql files from the migrations directory in
// lexical order, tracking applied files in schema_migrations.
func runMigrate(args []string) bool {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dir := fs.String("dir", "migrations", "migrations directory")
	fs.Parse(args)

	db, err := openDB()
	if err != nil {
		fmt.Printf("✗ database connection failed: %v\n", err)
		return false
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		fmt.Printf("✗ failed to prepare migrations table: %v\n", err)
		return false
	}

	applied := map[string]bool{}
	rows, err := db.Query(`SELECT filename FROM schema_migrations`)
	if err != nil {
		fmt.Printf("✗ failed to read applied migrations: %v\n", err)
		return false
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			fmt.Printf("✗ failed to read applied migrations: %v\n", err)
			return false
		}
		applied[name] = true
	}
	rows.Close()

	files, err := filepath.Glob(filepath.Join(*dir, "*.sql"))
	if err != nil || len(files) == 0 {
		fmt.Printf("✗ no migrations found in %s\n", *dir)
		return false
	}
	sort.Strings(files)

	ran := 0
	for _, file := range files {
		name := filepath.Base(file)
		if applied[name] {
			continue
		}
		sqlText, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("✗ failed to read %s: %v\n", name, err)
			return false
		}

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("✗ failed to begin transaction: %v\n", err)
			return false
		}
		if _, err := tx.Exec(string(sqlText)); err != nil {
			tx.Rollback()
			fmt.Printf("✗ migration %s failed: %v\n", name, err)
			return false
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			fmt.Printf("✗ failed to record migration %s: %v\n", name, err)
			return false
		}
		if err := tx.Commit(); err != nil {
			fmt.Printf("✗ failed to commit migration %s: %v\n", name, err)
			return false
		}
		fmt.Printf("✓ applied %s\n", name)
		ran++
	}

	if ran == 0 {
		fmt.Println("✓ schema up to date")
	}
	return true
}

var requiredTables = []string{
	"tenants", "profiles", "user_invitations", "reviews", "business_settings",
	"review_links", "invoices", "audit_logs", "usage_metrics", "system_settings",
}

// runCheckSchema verifies that every table the application reads exists.
func runCheckSchema() bool {
	db, err := openDB()
	if err != nil {
		fmt.Printf("✗ database connection failed: %v\n", err)
		return false
	}
	defer db.Close()

	missing := []string{}
	for _, table := range requiredTables {
		var exists bool
		err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
			table,
		).Scan(&exists)
		if err != nil {
			fmt.Printf("✗ failed to check table %s: %v\n", table, err)
			return false
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		fmt.Printf("✗ missing tables: %s\n", strings.Join(missing, ", "))
		return false
	}
	fmt.Printf("✓ all %d tables present\n", len(requiredTables))
	return true
}

// runDiagnoseUser explains why an account cannot log in or sees no data:
// missing profile, deactivated, no tenant, suspended tenant, or a pending
// invitation never consumed.
func runDiagnoseUser(args []string) bool {
	fs := flag.NewFlagSet("diagnose-user", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	fs.Parse(args)

	if *email == "" {
		fmt.Println("Error: -email is required")
		fs.PrintDefaults()
		return false
	}

	db, err := openDB()
	if err != nil {
		fmt.Printf("✗ database connection failed: %v\n", err)
		return false
	}
	defer db.Close()

	var (
		id, role     string
		tenantID     sql.NullString
		isActive     bool
		tenantStatus sql.NullString
	)
	err = db.QueryRow(`
		SELECT p.id, p.role, p.tenant_id, p.is_active, t.status
		FROM profiles p
		LEFT JOIN tenants t ON t.id = p.tenant_id
		WHERE lower(p.email) = lower($1)`, *email,
	).Scan(&id, &role, &tenantID, &isActive, &tenantStatus)
	if err == sql.ErrNoRows {
		fmt.Printf("✗ no profile for %s\n", *email)

		var pending int
		db.QueryRow(`SELECT count(*) FROM user_invitations WHERE lower(email) = lower($1) AND used_at IS NULL AND expires_at > now()`, *email).Scan(&pending)
		if pending > 0 {
			fmt.Printf("  → %d pending invitation(s); the user has not signed up yet\n", pending)
		} else {
			fmt.Println("  → no pending invitation; invite the user first")
		}
		return false
	}
	if err != nil {
		fmt.Printf("✗ lookup failed: %v\n", err)
		return false
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", id)
	fmt.Fprintf(w, "Role\t%s\n", role)
	fmt.Fprintf(w, "Active\t%v\n", isActive)
	if tenantID.Valid {
		fmt.Fprintf(w, "Tenant\t%s (%s)\n", tenantID.String, tenantStatus.String)
	} else {
		fmt.Fprintln(w, "Tenant\t(none)")
	}
	w.Flush()

	healthy := true
	if !isActive {
		fmt.Println("✗ account is deactivated")
		healthy = false
	}
	if !tenantID.Valid && role != "super_admin" {
		fmt.Println("✗ orphan account: no tenant assigned; re-invite or assign a tenant")
		healthy = false
	}
	if tenantStatus.Valid && tenantStatus.String != "active" {
		fmt.Printf("✗ tenant is %s\n", tenantStatus.String)
		healthy = false
	}
	if healthy {
		fmt.Println("✓ account looks healthy")
	}
	return healthy
}

// runSmokeTest exercises the public surface of a running server.
func runSmokeTest(args []string) bool {
	fs := flag.NewFlagSet("smoke-test", flag.ExitOnError)
	apiURL := fs.String("url", apiBaseURL(), "server base URL")
	slug := fs.String("slug", "", "tenant slug to exercise the public form (optional)")
	fs.Parse(args)

	client := &http.Client{Timeout: 10 * time.Second}

	checks := []struct {
		name string
		path string
	}{
		{"liveness", "/healthz"},
		{"readiness", "/readyz"},
		{"metrics", "/metrics"},
	}
	ok := true
	for _, c := range checks {
		resp, err := client.Get(*apiURL + c.path)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", c.name, err)
			ok = false
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Printf("✗ %s: HTTP %d\n", c.name, resp.StatusCode)
			ok = false
			continue
		}
		fmt.Printf("✓ %s\n", c.name)
	}

	if *slug != "" {
		resp, err := client.Get(*apiURL + "/api/public/tenants/" + *slug)
		if err != nil {
			fmt.Printf("✗ public form bootstrap: %v\n", err)
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Printf("✗ public form bootstrap: HTTP %d\n", resp.StatusCode)
			return false
		}
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		fmt.Printf("✓ public form bootstrap for %s\n", *slug)
	}
	return ok
}

// runEnvCheck validates the configuration without touching the network.
func runEnvCheck() bool {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("✗ config load failed: %v\n", err)
		return false
	}
	problems := cfg.Validate()
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("✗ %s\n", p)
		}
		return false
	}
	fmt.Println("✓ configuration looks valid")
	return true
}

func apiBaseURL() string {
	if url := os.Getenv("REVIEWFLOW_API"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func printUsage() {
	fmt.Print(`ReviewFlow ops CLI

Usage:
  reviewflow <command> [options]

Commands:
  migrate        Apply pending SQL migrations (-dir migrations)
  check-schema   Verify all application tables exist
  diagnose-user  Explain why an account cannot log in (-email)
  smoke-test     Probe a running server (-url, -slug)
  env-check      Validate configuration from the environment
  help           Show this help message

Environment Variables:
  DATABASE_URL     Postgres connection string
  REVIEWFLOW_API   Server base URL for smoke-test (default: http://localhost:8080)

Exit status is 0 on success and 1 on any failure.
`)
}
