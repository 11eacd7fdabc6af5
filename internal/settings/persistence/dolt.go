//go:build cgo

package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	embedded "github.com/dolthub/driver"
)

const doltOpenMaxElapsed = 30 * time.Second

func newDoltOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = doltOpenMaxElapsed
	return bo
}

// Dolt is a Provider backed by the embedded dolt SQL engine: one database
// directory per base directory, with one `kv_<pluginID>` table created
// lazily the first time that plugin id is read or written. Embedded mode needs no server
// process, which keeps a single proxy instance self-contained.
type Dolt struct {
	mu      sync.Mutex
	db      *sql.DB
	known   map[string]bool // plugin ids whose kv table is known to exist
	path    string
}

// OpenDolt opens (creating if necessary) an embedded dolt database at
// path, retrying with exponential backoff since the embedded engine can
// transiently fail to acquire its own lock file right after a previous
// process exits.
func OpenDolt(ctx context.Context, path string) (*Dolt, error) {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("persistence: settings path %q is a file, not a directory", path)
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("persistence: creating settings directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("persistence: resolving absolute path: %w", err)
	}

	const database = "settings"
	initDSN := fmt.Sprintf("file://%s?commitname=bastproxy&commitemail=bastproxy@localhost", absPath)
	dbDSN := fmt.Sprintf("file://%s?commitname=bastproxy&commitemail=bastproxy@localhost&database=%s", absPath, database)

	if err := withConn(ctx, initDSN, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", database))
		return err
	}); err != nil {
		return nil, fmt.Errorf("persistence: creating settings database: %w", err)
	}

	openCfg, err := embedded.ParseDSN(dbDSN)
	if err != nil {
		return nil, fmt.Errorf("persistence: parsing dolt DSN: %w", err)
	}
	openCfg.BackOff = newDoltOpenBackoff()

	connector, err := embedded.NewConnector(openCfg)
	if err != nil {
		return nil, fmt.Errorf("persistence: creating dolt connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: pinging dolt database: %w", err)
	}

	return &Dolt{db: db, known: make(map[string]bool), path: absPath}, nil
}

func withConn(ctx context.Context, dsn string, fn func(context.Context, *sql.DB) error) error {
	cfg, err := embedded.ParseDSN(dsn)
	if err != nil {
		return err
	}
	cfg.BackOff = newDoltOpenBackoff()

	connector, err := embedded.NewConnector(cfg)
	if err != nil {
		return err
	}
	db := sql.OpenDB(connector)
	defer db.Close()
	defer connector.Close()

	return fn(ctx, db)
}

func tableName(pluginID string) string {
	// Plugin ids are not restricted to a character set upstream (the
	// manifest loader only rejects an empty id); every statement quotes
	// the table name with backticks.
	return "kv_" + pluginID
}

func (d *Dolt) ensureTable(ctx context.Context, pluginID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.known[pluginID] {
		return nil
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (`key` VARCHAR(255) PRIMARY KEY, `value` LONGTEXT)", tableName(pluginID))
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("persistence: creating table for plugin %q: %w", pluginID, err)
	}
	d.known[pluginID] = true
	return nil
}

func (d *Dolt) Get(ctx context.Context, pluginID, key string) (string, bool, error) {
	if err := d.ensureTable(ctx, pluginID); err != nil {
		return "", false, err
	}
	row := d.db.QueryRowContext(ctx, fmt.Sprintf("SELECT `value` FROM `%s` WHERE `key` = ?", tableName(pluginID)), key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (d *Dolt) Put(ctx context.Context, pluginID, key, value string) error {
	if err := d.ensureTable(ctx, pluginID); err != nil {
		return err
	}
	stmt := fmt.Sprintf("REPLACE INTO `%s` (`key`, `value`) VALUES (?, ?)", tableName(pluginID))
	_, err := d.db.ExecContext(ctx, stmt, key, value)
	return err
}

func (d *Dolt) Iterate(ctx context.Context, pluginID string, fn func(key, value string) bool) error {
	if err := d.ensureTable(ctx, pluginID); err != nil {
		return err
	}
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT `key`, `value` FROM `%s`", tableName(pluginID)))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if !fn(k, v) {
			break
		}
	}
	return rows.Err()
}

func (d *Dolt) Flush(ctx context.Context) error {
	// The embedded engine commits each statement's transaction already;
	// flush is a no-op hook kept so callers can treat every Provider
	// uniformly regardless of backend durability model.
	return nil
}

func (d *Dolt) Close() error {
	return d.db.Close()
}
