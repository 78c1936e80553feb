package database

import (
	"errors"
	"fmt"

	"grantsbackend/internal/config"
	"grantsbackend/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(cfg config.DBConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info("connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return db, nil
}

// Models is every table owned by this service, in dependency order.
func Models() []any {
	return []any{
		&model.Permission{},
		&model.Role{},
		&model.Partner{},
		&model.Template{},
		&model.TemplateLine{},
		&model.Budget{},
		&model.BudgetLine{},
		&model.Contract{},
		&model.IdempotencyRecord{},
		&model.AuditLog{},
	}
}

// Migrate auto-migrates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// SeedPermissions inserts the default permission codes and an admin role that
// holds all of them. Existing rows are left as they are.
func SeedPermissions(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		perms := make([]model.Permission, 0, len(model.DefaultPermissions))
		for _, p := range model.DefaultPermissions {
			perm := p
			if err := tx.Where(model.Permission{Code: p.Code}).FirstOrCreate(&perm).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Code, err)
			}
			perms = append(perms, perm)
		}

		var admin model.Role
		err := tx.Where("name = ?", model.RoleAdmin).First(&admin).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			admin = model.Role{Name: model.RoleAdmin, Description: "Full access", IsSystem: true}
			if err := tx.Create(&admin).Error; err != nil {
				return fmt.Errorf("seed admin role: %w", err)
			}
		} else if err != nil {
			return err
		}
		return tx.Model(&admin).Association("Permissions").Replace(perms)
	})
}
