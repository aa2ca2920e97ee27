package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/pressly/goose/v3"
	"github.com/ugclab/ugc-pipeline/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql/*/*.sql
var embedded embed.FS

// MigrateStore applies the migrations of the configured database type. The
// migrations shipped with the binary are used unless a folder is configured,
// in which case it must hold one sub folder per dialect.
func MigrateStore(db *gorm.DB, cfg *config.Config) error {
	goose.SetLogger(&logger{})

	dialect, err := dialectFor(cfg.Database.Type)
	if err != nil {
		return err
	}

	migrationFS, root, err := migrationSource(cfg.Service.MigrationFolder)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationFS)

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return goose.Up(sqlDB, path.Join(root, dialect))
}

func dialectFor(dbType string) (string, error) {
	switch dbType {
	case config.DBTypePostgres:
		return "postgres", nil
	case config.DBTypeSqlite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("database type %q has no migrations", dbType)
	}
}

func migrationSource(folder string) (fs.FS, string, error) {
	if folder == "" {
		return embedded, "sql", nil
	}

	fi, err := os.Stat(folder)
	if err != nil {
		return nil, "", err
	}
	if !fi.Mode().IsDir() {
		return nil, "", fmt.Errorf("failed to open migration folder: %s is not a folder", folder)
	}

	return os.DirFS(folder), ".", nil
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) { zap.S().Named("goose").Infof(format, v...) }
func (m *logger) Fatalf(format string, v ...interface{}) { zap.S().Named("goose").Fatalf(format, v...) }
