// Copyright (c) 2025 Hakoryn
// Vaultbridge - hardware vault signing bridge
// This source code is licensed under the MIT license found in the LICENSE file.

// package db provides the data access layer for Vaultbridge.
// It abstracts the underlying database (SQLite, PostgreSQL, MySQL) behind
// a consistent Store interface so the rest of the application never
// touches SQL drivers directly.
package db // import "github.com/hakoryn/vaultbridge/internal/db"

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/hakoryn/vaultbridge/internal/model"

	// SQL drivers required for integration tests and runtime.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	store Store
	//go:embed migrations
	embeddedMigrations embed.FS
	// sqlOpenFunc allows tests to override database opening behavior.
	sqlOpenFunc = sql.Open
)

// InitDB initializes the database connection based on the provided type
// and DSN, sets the package-level store, and runs pending migrations.
func InitDB(dbType, dsn string) error {
	s, err := NewStoreFromDSN(dbType, dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	store = s
	return nil
}

// IsInitialized reports whether the package-level store has been set.
func IsInitialized() bool {
	return store != nil
}

// NewStoreFromDSN opens a sql.DB for the given DSN, runs migrations, and
// returns a Store backed by a long-lived *bun.DB.
func NewStoreFromDSN(dbType, dsn string) (Store, error) {
	driverName := dbType
	// The pgx stdlib registers driver name "pgx"; map "postgres" to that driver.
	if dbType == "postgres" {
		driverName = "pgx"
	}
	start := time.Now()
	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Conservative pool defaults for a single-operator tool; overridable
	// via environment for CI tuning.
	maxOpen := envInt("VAULTBRIDGE_DB_MAX_OPEN_CONNS", 10)
	maxIdle := envInt("VAULTBRIDGE_DB_MAX_IDLE_CONNS", 10)
	connMax := time.Duration(envInt("VAULTBRIDGE_DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second

	// In-memory SQLite keeps one schema per connection; force a single
	// connection so tests on ":memory:" see a consistent database.
	if dbType == "sqlite" && dsn == ":memory:" {
		maxOpen = 1
		maxIdle = 1
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMax)

	dbLogf("db: opened %s driver in %s (max open=%d, idle=%d)", driverName, time.Since(start), maxOpen, maxIdle)

	if err := RunMigrations(sqlDB, dbType); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	bunDB := createBunDB(sqlDB, dbType)
	switch dbType {
	case "sqlite":
		return newSqliteStore(bunDB), nil
	case "postgres":
		return newPostgresStore(bunDB), nil
	case "mysql":
		return newMySQLStore(bunDB), nil
	default:
		return nil, fmt.Errorf("unsupported database type for store creation: '%s'", dbType)
	}
}

// envInt reads an integer environment override, falling back to def.
func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and dbType.
func createBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}

// RunMigrations applies the embedded migrations for a given database
// connection, recording applied versions in schema_migrations.
func RunMigrations(db *sql.DB, dbType string) error {
	migrationsPath := fmt.Sprintf("migrations/%s", dbType)

	entries, err := fs.ReadDir(embeddedMigrations, migrationsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read embedded migrations (%s): %w", migrationsPath, err)
	}

	var ups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	if err := ensureSchemaMigrationsTable(db, dbType); err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %w", err)
	}

	for _, fname := range ups {
		version := strings.TrimSuffix(fname, ".up.sql")

		var exists int
		query := "SELECT 1 FROM schema_migrations WHERE version = ?"
		if dbType == "postgres" {
			query = "SELECT 1 FROM schema_migrations WHERE version = $1"
		}
		err := db.QueryRow(query, version).Scan(&exists)
		if err == nil {
			continue // already applied
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check migration version %s: %w", version, err)
		}

		data, err := embeddedMigrations.ReadFile(path.Join(migrationsPath, fname))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", fname, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", version, err)
		}
		for _, stmt := range splitStatements(string(data)) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to execute migration %s: %w", version, err)
			}
		}
		insertQuery := "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)"
		if dbType == "postgres" {
			insertQuery = "INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2)"
		}
		if _, err := tx.Exec(insertQuery, version, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to commit migration %s: %w", version, err)
		}
		dbLogf("db: applied migration %s for %s", version, dbType)
	}

	return nil
}

// splitStatements breaks a migration file into individual statements.
// MySQL's driver will not execute multiple statements in one Exec by
// default, so migrations are split on trailing semicolons.
func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ensureSchemaMigrationsTable creates schema_migrations if missing.
func ensureSchemaMigrationsTable(db *sql.DB, dbType string) error {
	// MySQL cannot index TEXT without a length; use a bounded VARCHAR there.
	if dbType == "mysql" {
		_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version VARCHAR(191) PRIMARY KEY, applied_at TIMESTAMP)`)
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMP)`)
	return err
}

// RunDBMaintenance performs engine-specific maintenance for the given
// DSN: PRAGMA optimize/VACUUM/WAL checkpoint for SQLite, VACUUM ANALYZE
// for Postgres, OPTIMIZE TABLE for MySQL.
func RunDBMaintenance(dbType, dsn string) error {
	driverName := dbType
	if dbType == "postgres" {
		driverName = "pgx"
	}
	sqlDB, err := sqlOpenFunc(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database for maintenance: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch dbType {
	case "sqlite":
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
			dbLogf("db: sqlite optimize failed (ignored): %v", err)
		}
		if _, err := sqlDB.ExecContext(ctx, "VACUUM;"); err != nil {
			return fmt.Errorf("sqlite vacuum failed: %w", err)
		}
		_, _ = sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")
		var res string
		if row := sqlDB.QueryRowContext(ctx, "PRAGMA integrity_check;"); row != nil {
			_ = row.Scan(&res)
			if res != "ok" {
				return fmt.Errorf("sqlite integrity_check failed: %s", res)
			}
		}
	case "postgres":
		if _, err := sqlDB.ExecContext(ctx, "VACUUM ANALYZE;"); err != nil {
			return fmt.Errorf("postgres vacuum failed: %w", err)
		}
	case "mysql":
		rows, err := sqlDB.QueryContext(ctx, "SHOW TABLES")
		if err != nil {
			return fmt.Errorf("mysql show tables failed: %w", err)
		}
		defer func() { _ = rows.Close() }()
		var table string
		for rows.Next() {
			if err := rows.Scan(&table); err != nil {
				return fmt.Errorf("mysql read table name failed: %w", err)
			}
			if _, err := sqlDB.ExecContext(ctx, fmt.Sprintf("OPTIMIZE TABLE %s", table)); err != nil {
				dbLogf("db: mysql optimize table %s failed: %v", table, err)
			}
		}
	default:
		return fmt.Errorf("unsupported db type for maintenance: %s", dbType)
	}
	return nil
}

// --- Package-level facade over the initialized store ---

// AddVault registers a new vault profile.
func AddVault(vendor model.VaultVendor, label, publicKey string, alg model.Algorithm, priority int) (int, error) {
	return store.AddVault(vendor, label, publicKey, alg, priority)
}

// GetVault retrieves a vault profile by ID.
func GetVault(id int) (*model.VaultProfile, error) {
	return store.GetVault(id)
}

// GetVaultByLabel retrieves a vault profile by its unique label.
func GetVaultByLabel(label string) (*model.VaultProfile, error) {
	return store.GetVaultByLabel(label)
}

// GetAllVaults retrieves every registered vault profile.
func GetAllVaults() ([]model.VaultProfile, error) {
	return store.GetAllVaults()
}

// GetActiveVaults retrieves the vault profiles eligible for selection.
func GetActiveVaults() ([]model.VaultProfile, error) {
	return store.GetActiveVaults()
}

// DeleteVault removes a vault profile.
func DeleteVault(id int) error {
	return store.DeleteVault(id)
}

// ToggleVaultStatus flips a vault profile's active flag.
func ToggleVaultStatus(id int) error {
	return store.ToggleVaultStatus(id)
}

// SetVaultPriority updates a profile's selection priority.
func SetVaultPriority(id, priority int) error {
	return store.SetVaultPriority(id, priority)
}

// SetSelectedVault marks one vault as the current selection.
func SetSelectedVault(id int) error {
	return store.SetSelectedVault(id)
}

// GetSelectedVault returns the currently selected vault, or nil.
func GetSelectedVault() (*model.VaultProfile, error) {
	return store.GetSelectedVault()
}

// CreateSigningRequest persists a new signing request.
func CreateSigningRequest(req *model.SigningRequest) error {
	return store.CreateSigningRequest(req)
}

// GetSigningRequest retrieves a signing request by its UUID.
func GetSigningRequest(id string) (*model.SigningRequest, error) {
	return store.GetSigningRequest(id)
}

// GetSigningRequestsByStatus lists requests in a given lifecycle state.
func GetSigningRequestsByStatus(status model.RequestStatus) ([]model.SigningRequest, error) {
	return store.GetSigningRequestsByStatus(status)
}

// GetAllSigningRequests lists every signing request, newest first.
func GetAllSigningRequests() ([]model.SigningRequest, error) {
	return store.GetAllSigningRequests()
}

// UpdateRequestStatus transitions a request to a new lifecycle state.
func UpdateRequestStatus(id string, status model.RequestStatus) error {
	return store.UpdateRequestStatus(id, status)
}

// ExpireStaleRequests marks aged-out open requests as expired and
// returns how many were swept.
func ExpireStaleRequests(now time.Time) (int, error) {
	return store.ExpireStaleRequests(now)
}

// SaveSignedResult persists a vault's response.
func SaveSignedResult(res *model.SignedResult) (int, error) {
	return store.SaveSignedResult(res)
}

// GetSignedResult retrieves the stored result for a request, or nil.
func GetSignedResult(requestID string) (*model.SignedResult, error) {
	return store.GetSignedResult(requestID)
}

// GetAllAuditLogEntries retrieves the audit log, most recent first.
func GetAllAuditLogEntries() ([]model.AuditLogEntry, error) {
	return store.GetAllAuditLogEntries()
}

// LogAction records an audit trail event.
func LogAction(action string, details string) error {
	return store.LogAction(action, details)
}
