package db

import (
	"fmt"
	"time"

	"audiolib/config"
	"audiolib/logger"
	"audiolib/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnectGormDB opens a GORM handle. It is only used for schema migration;
// request paths go through database/sql.
func ConnectGormDB(cfg *config.Config, verbose bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if verbose {
		level = gormlogger.Info
	}
	gdb, err := gorm.Open(mysql.Open(cfg.MySQLDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
		// 禁用外键约束
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return gdb, nil
}

// AutoMigrateModels creates or updates the users and tracks tables.
func AutoMigrateModels(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&model.User{}, &model.Track{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	logger.Info("数据库表结构迁移完成")
	return nil
}

// CloseGormDB closes the pool behind gdb.
func CloseGormDB(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
