// Package database opens the gorm connection, migrates the models and seeds the
// initial admin account.
package database

import (
	"errors"
	"fmt"
	"log"

	"github.com/memberpanel/memberpanel/config"
	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/util/crypto"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

func initModels(db *gorm.DB) error {
	models := []any{
		&model.User{},
		&model.AuditLog{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			log.Printf("Error auto migrating model: %v", err)
			return err
		}
	}
	return nil
}

// initAdmin creates the configured admin account when no admin exists yet.
func initAdmin(db *gorm.DB) error {
	email, password := config.GetAdminEmail(), config.GetAdminPassword()
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		log.Printf("Error counting admins: %v", err)
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.NewHasher(config.GetBcryptCost()).Hash(password)
	if err != nil {
		return err
	}

	var existing model.User
	err = db.Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		return db.Model(&existing).Update("role", model.RoleAdmin).Error
	case IsNotFound(err):
		return db.Create(&model.User{
			Name:         config.GetAdminName(),
			Email:        email,
			PasswordHash: hash,
			Role:         model.RoleAdmin,
		}).Error
	default:
		return err
	}
}

func dialector(cfg *config.DatabaseConfig) gorm.Dialector {
	if cfg.IsPostgreSQL() {
		return postgres.Open(cfg.GetDSN())
	}
	return sqlite.Open(cfg.GetDSN())
}

// Open connects to the configured database and migrates it. It does not touch the
// package-level connection.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	if err := cfg.ValidateConfig(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectoryExists(); err != nil {
		return nil, err
	}

	var gormLogger logger.Interface
	if config.IsDebug() {
		gormLogger = logger.Default
	} else {
		gormLogger = logger.Discard
	}

	c := &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
	}

	conn, err := gorm.Open(dialector(cfg), c)
	if err != nil {
		return nil, err
	}

	if cfg.IsSQLite() {
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		// one connection serializes writers and avoids SQLITE_BUSY on lock upgrades
		sqlDB.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA cache_size = -64000;",
			"PRAGMA temp_store = MEMORY;",
			"PRAGMA busy_timeout = 5000;",
		}
		for _, p := range pragmas {
			if _, err := sqlDB.Exec(p); err != nil {
				return nil, err
			}
		}
	}

	if err := initModels(conn); err != nil {
		return nil, err
	}
	if err := initAdmin(conn); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	return conn, nil
}

// InitDB opens the database and makes it available through GetDB.
func InitDB(cfg *config.DatabaseConfig) error {
	conn, err := Open(cfg)
	if err != nil {
		return err
	}
	db = conn
	return nil
}

func CloseDB() error {
	if db != nil {
		if err := Checkpoint(db); err != nil {
			log.Printf("error executing checkpoint: %v", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetDB() *gorm.DB {
	return db
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// Checkpoint flushes the sqlite WAL of conn into the main database file. It is a no-op
// on postgres.
func Checkpoint(conn *gorm.DB) error {
	if conn == nil || conn.Dialector.Name() != "sqlite" {
		return nil
	}
	return conn.Exec("PRAGMA wal_checkpoint;").Error
}
