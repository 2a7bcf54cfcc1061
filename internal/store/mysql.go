package store

import (
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name: "mysql",
	migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename VARCHAR(255) PRIMARY KEY,
		applied_at VARCHAR(19) NOT NULL
	)`,
}

// MySQLConfig holds connection settings for a MySQL server.
type MySQLConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
}

// DSN builds the driver connection string. Timestamps are exchanged as
// plain DATETIME text, so parseTime stays off.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	// Report matched rather than changed rows from UPDATE.
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}

// NewMySQLStore connects to a MySQL server and verifies the connection.
func NewMySQLStore(c MySQLConfig, loc *time.Location) (*SQLStore, error) {
	db, err := sql.Open("mysql", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
		db.SetMaxIdleConns(c.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to mysql %s: %w", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), err)
	}

	return newSQLStore(db, mysqlDialect, loc), nil
}
