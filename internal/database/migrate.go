package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// SchemaStatus はスキーマの適用状況を表す。
// Versionが0かつApplied=falseの場合は未適用。
type SchemaStatus struct {
	Version uint
	Dirty   bool
	Applied bool
}

// Migrator は埋め込みSQLによるスキーマ移行を行う。
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator はPostgreSQLの接続URLに対するMigratorを生成する。
func NewMigrator(databaseURL string) (*Migrator, error) {
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded schema: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up は未適用のスキーマ移行をすべて適用する。最新の場合は何もしない。
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Down はすべてのスキーマ移行を取り消す。
func (mg *Migrator) Down() error {
	if err := mg.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to revert schema: %w", err)
	}
	return nil
}

// Status は現在のスキーマバージョンを返す。
func (mg *Migrator) Status() (SchemaStatus, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaStatus{}, nil
	}
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return SchemaStatus{Version: v, Dirty: dirty, Applied: true}, nil
}

// Close はソースとDB接続を解放する。
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// RunMigrations はスキーマを最新まで適用し、適用後のバージョンをログに記録する。
func RunMigrations(databaseURL string) error {
	mg, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := mg.Up(); err != nil {
		return err
	}

	st, err := mg.Status()
	if err != nil {
		return err
	}
	slog.Info("schema is up to date", slog.Uint64("version", uint64(st.Version)))
	return nil
}
