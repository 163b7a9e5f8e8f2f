package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snapkit/internal/config"
	"snapkit/internal/entity"
	"snapkit/internal/model/sql"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const (
	DBTypeMySQL    = "mysql"
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
)

const defaultSQLitePath = "datas/snapkit.db"

// poolSettings 控制 database/sql 连接池
type poolSettings struct {
	maxIdle     int
	maxOpen     int
	maxLifetime time.Duration
}

var serverPool = poolSettings{maxIdle: 10, maxOpen: 100, maxLifetime: time.Hour}

// InitRepository 按 DBType 打开数据库，迁移表结构并返回仓库
func InitRepository(cfg *config.Config) (Repository, error) {
	dialector, pool, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := openAndMigrate(dialector, pool)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.DBType, err)
	}
	logrus.WithField("db_type", cfg.DBType).Info("repository ready")
	return sql.NewGormRepository(db), nil
}

func dialectorFor(cfg *config.Config) (gorm.Dialector, poolSettings, error) {
	dsn := strings.TrimSpace(cfg.DSNURL)
	switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
	case DBTypeMySQL:
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
				cfg.DBUser, cfg.DBPassword, cfg.DBAddr, cfg.DBPort, cfg.DBName)
		}
		return mysql.Open(dsn), serverPool, nil
	case DBTypePostgres:
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
				cfg.DBAddr, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		}
		return postgres.Open(dsn), serverPool, nil
	case DBTypeSQLite:
		file := strings.TrimSpace(cfg.DBPath)
		if file == "" {
			file = defaultSQLitePath
		}
		// SQLite 只会创建文件，不会创建目录
		if dir := filepath.Dir(file); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, poolSettings{}, fmt.Errorf("create sqlite dir %q: %w", dir, err)
			}
		}
		// 单写者，避免 database is locked
		return sqlite.Open(file), poolSettings{maxIdle: 1, maxOpen: 1}, nil
	case "":
		return nil, poolSettings{}, fmt.Errorf("database type is not configured")
	default:
		return nil, poolSettings{}, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
}

func openAndMigrate(dialector gorm.Dialector, pool poolSettings) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		NamingStrategy:                           schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(pool.maxIdle)
	sqlDB.SetMaxOpenConns(pool.maxOpen)
	if pool.maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.maxLifetime)
	}

	if err := db.AutoMigrate(
		&entity.DbUser{},
		&entity.DbPoolKey{},
		&entity.DbPoolCursor{},
		&entity.DbImage{},
		&entity.DbGeneration{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := sql.EnsurePoolCursor(db); err != nil {
		return nil, fmt.Errorf("seed pool cursor: %w", err)
	}
	return db, nil
}

// NewSQLiteMemoryRepository 打开共享缓存的内存库，name 相同的调用共享同一份数据。
func NewSQLiteMemoryRepository(name string) (*sql.GormRepository, *gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := openAndMigrate(sqlite.Open(dsn), poolSettings{maxIdle: 1, maxOpen: 1})
	if err != nil {
		return nil, nil, err
	}
	return sql.NewGormRepository(db), db, nil
}
