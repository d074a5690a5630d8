package migrations

import (
	"os"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrateStore applies the versioned sql migrations found in migrationFolder.
func MigrateStore(db *gorm.DB, migrationFolder string) error {
	goose.SetLogger(&logger{})

	fi, err := os.Stat(migrationFolder)
	if err != nil {
		return errors.Wrapf(err, "failed to open migration folder %q", migrationFolder)
	}

	if !fi.Mode().IsDir() {
		return errors.Errorf("failed to open migration folder: %s is not a folder", migrationFolder)
	}

	dialect, err := gooseDialect(db)
	if err != nil {
		return err
	}

	goose.SetBaseFS(os.DirFS(migrationFolder))
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "setting goose dialect")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "getting sql connection")
	}

	if err := goose.Up(sqlDB, "."); err != nil {
		return errors.Wrap(err, "applying migrations")
	}

	return nil
}

// Version returns the current schema version.
func Version(db *gorm.DB) (int64, error) {
	dialect, err := gooseDialect(db)
	if err != nil {
		return 0, err
	}
	if err := goose.SetDialect(dialect); err != nil {
		return 0, errors.Wrap(err, "setting goose dialect")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return 0, errors.Wrap(err, "getting sql connection")
	}
	return goose.GetDBVersion(sqlDB)
}

// The sql files are written for postgres. sqlite databases are created with gorm's AutoMigrate instead.
func gooseDialect(db *gorm.DB) (string, error) {
	switch name := db.Dialector.Name(); name {
	case "postgres":
		return "postgres", nil
	default:
		return "", errors.Errorf("versioned migrations are not available for %q databases", name)
	}
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) {
	zap.S().Named("migrations").Infof(format, v...)
}
func (m *logger) Fatalf(format string, v ...interface{}) {
	zap.S().Named("migrations").Fatalf(format, v...)
}
