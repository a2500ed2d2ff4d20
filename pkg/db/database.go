package db

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var gormSourceDB *gorm.DB
var databaseOnce sync.Once

// InitDB 初始化源库（支持 sqlite/mysql/postgres）
func InitDB(cfg *Config) error {
	var err error
	databaseOnce.Do(func() {
		var dial gorm.Dialector
		switch strings.ToLower(cfg.Driver) {
		case "sqlite":
			dial = sqlite.Open(cfg.DSN())
		case "postgres":
			dial = postgres.Open(cfg.DSN())
		default:
			dial = mysql.New(mysql.Config{DSN: cfg.DSN()})
		}
		gormSourceDB, err = gorm.Open(dial, &gorm.Config{
			NowFunc: func() time.Time {
				ti, _ := time.LoadLocation("Asia/Shanghai")
				return time.Now().In(ti)
			},
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return
		}
		if cfg.Debug {
			gormSourceDB = gormSourceDB.Debug()
		}
		if sqlDB, dbErr := gormSourceDB.DB(); dbErr == nil {
			if cfg.MaxIdleConns > 0 {
				sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
			}
			if cfg.MaxOpenConns > 0 {
				sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
			}
			if cfg.ConnMaxLifetime > 0 {
				sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
			}
		}
		zap.S().Debug("*** 数据库初始化完成 ***")
	})
	return err
}

func GetSourceDB() *gorm.DB {
	return gormSourceDB
}
