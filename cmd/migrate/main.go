package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"inventory-engine/internal/config"
	"inventory-engine/internal/db"
	"inventory-engine/internal/logger"
)

const migratorLockID = 7462839

func main() {
	_ = godotenv.Load()
	dir := flag.String("dir", "migrations", "directory holding NNN_description.sql files")
	flag.Parse()

	cfg := config.LoadEnv()
	log := logger.Must(logger.Config{
		IsDevelopment:     cfg.IsDevelopment(),
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     true,
		DisableStacktrace: true,
	})
	defer log.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("connect", zap.Error(err))
	}
	defer pool.Close()

	conn, err := acquireLock(ctx, pool)
	if err != nil {
		log.Fatal("lock", zap.Error(err))
	}
	defer conn.Release()

	if err := setupSchemaMigrations(ctx, pool); err != nil {
		log.Fatal("schema_migrations", zap.Error(err))
	}

	files, err := discoverMigrations(*dir)
	if err != nil {
		log.Fatal("discover", zap.Error(err))
	}

	for _, filename := range files {
		applied, err := applyMigration(ctx, pool, *dir, filename)
		if err != nil {
			log.Fatal("migration failed", zap.String("file", filename), zap.Error(err))
		}
		if applied {
			log.Info("applied", zap.String("file", filename))
		} else {
			log.Info("skipped", zap.String("file", filename))
		}
	}
	log.Info("all migrations processed", zap.Int("files", len(files)))
}

func acquireLock(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migratorLockID).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("query advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, errors.New("another migrator is currently running")
	}
	return conn, nil
}

func setupSchemaMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	return err
}

// discoverMigrations returns the .sql files of dir sorted by name. Versions must
// be unique.
func discoverMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var filenames []string
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := extractVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate version %s: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()
		filenames = append(filenames, entry.Name())
	}
	sort.Strings(filenames)
	return filenames, nil
}

func extractVersion(filename string) (string, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid migration filename %s, expected NNN_description.sql", filename)
	}
	return parts[0], nil
}

func checksum(sql []byte) string {
	hash := sha256.Sum256(sql)
	return hex.EncodeToString(hash[:])
}

// applyMigration runs one file in its own transaction. A file already recorded with
// the same checksum is skipped; a changed file is an error.
func applyMigration(ctx context.Context, pool *pgxpool.Pool, dir, filename string) (bool, error) {
	version, err := extractVersion(filename)
	if err != nil {
		return false, err
	}
	sqlBytes, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return false, err
	}
	sum := checksum(sqlBytes)

	var existing string
	err = pool.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", version).Scan(&existing)
	switch {
	case err == nil:
		if existing != sum {
			return false, fmt.Errorf("checksum mismatch: recorded %s, file %s", existing, sum)
		}
		return false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("query schema_migrations: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
		version, filename, sum); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
