package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"fund-balance-service/internal/config"
)

func NewConnection(cfg *config.Config, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") {
			db.Close()
			return nil, fmt.Errorf("error pinging database: %w", err)
		}

		log.Info("database does not exist, attempting to create it", zap.String("database", cfg.Database.Name))
		db.Close()

		if err := createDatabase(cfg); err != nil {
			return nil, err
		}
		log.Info("created database", zap.String("database", cfg.Database.Name))

		db, err = sql.Open("mysql", cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("error connecting to new database: %w", err)
		}
		if err = db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("error verifying connection to new database: %w", err)
		}
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("connected to MySQL database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name))
	return db, nil
}

func createDatabase(cfg *config.Config) error {
	rootDB, err := sql.Open("mysql", getRootDSN(cfg))
	if err != nil {
		return fmt.Errorf("error connecting to MySQL root: %w", err)
	}
	defer rootDB.Close()

	_, err = rootDB.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", cfg.Database.Name))
	if err != nil {
		return fmt.Errorf("error creating database: %w", err)
	}
	return nil
}

func getRootDSN(cfg *config.Config) string {
	root := mysql.NewConfig()
	root.User = cfg.Database.User
	root.Passwd = cfg.Database.Password
	root.Net = "tcp"
	root.Addr = fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	root.ParseTime = true
	return root.FormatDSN()
}

// Querier is satisfied by both *sql.DB and *sql.Tx, so repositories can
// read either inside an admission transaction or lock-free.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is the part of *sql.DB the services need to open transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// BeginSerializable opens a transaction at the strongest isolation level
// InnoDB offers. Plain SELECTs inside it take shared locks.
func BeginSerializable(ctx context.Context, db TxBeginner) (*sql.Tx, error) {
	return db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// BeginTx opens a transaction at the driver's default isolation level.
func BeginTx(ctx context.Context, db TxBeginner) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}
