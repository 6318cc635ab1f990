// Package mysql 基于 gorm + MySQL 实现 repository 接口。
package mysql

import (
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"sayhi/internal/model"
	"sayhi/internal/repository"
)

// TablePrefix 所有表名的前缀，与历史库表 sayhi_user / sayhi_message 保持一致。
const TablePrefix = "sayhi_"

const mysqlDuplicateEntry = 1062

// Config 返回仓储层统一使用的 gorm 配置。
func Config() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   TablePrefix,
			SingularTable: true,
		},
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// Open 连接 MySQL 并配置连接池。
func Open(dsn string) (*gorm.DB, error) {
	dsn, err := withFoundRows(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormmysql.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// withFoundRows 打开 clientFoundRows，使 UPDATE 的 RowsAffected 统计匹配行而不是变更行，
// 仓储据此区分"目标不存在"与"值未变化"。
func withFoundRows(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// AutoMigrate 根据模型同步表结构，仅用于开发环境；生产使用 goose 迁移。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// translate 把驱动层错误映射为 repository 哨兵错误。
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case isDuplicate(err):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	default:
		return err
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
