package db

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thep200/github-star-sweeper/cfg"
)

// Supported drivers
const (
	DriverMysql    = "mysql"
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

// Database lazily opens one gorm handle for the configured driver.
type Database struct {
	Config  *cfg.Config
	once    sync.Once
	db      *gorm.DB
	initErr error
}

func NewDatabase(config *cfg.Config) (*Database, error) {
	if config == nil {
		return nil, fmt.Errorf("[ERROR][DB] config is nil")
	}
	switch strings.ToLower(config.Database.Driver) {
	case DriverMysql, DriverPostgres, DriverSqlite:
	default:
		return nil, fmt.Errorf("[ERROR][DB] unsupported database driver: %q", config.Database.Driver)
	}
	return &Database{
		Config: config,
	}, nil
}

func (m *Database) Driver() string {
	return strings.ToLower(m.Config.Database.Driver)
}

func (m *Database) DSN() string {
	c := m.Config.Database
	switch m.Driver() {
	case DriverMysql:
		config := mysqlDriver.Config{
			User:                 c.Username,
			Passwd:               c.Password,
			DBName:               c.Database,
			Addr:                 net.JoinHostPort(c.Host, c.Port),
			Net:                  "tcp",
			ParseTime:            true,
			AllowNativePasswords: true,
		}
		return config.FormatDSN()
	case DriverPostgres:
		dsn := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.Username, c.Password),
			Host:   net.JoinHostPort(c.Host, c.Port),
			Path:   "/" + c.Database,
		}
		if c.SSLMode != "" {
			dsn.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
		}
		return dsn.String()
	default:
		return c.Path
	}
}

func (m *Database) dialector() gorm.Dialector {
	switch m.Driver() {
	case DriverMysql:
		return mysql.Open(m.DSN())
	case DriverPostgres:
		return postgres.Open(m.DSN())
	default:
		return sqlite.Open(m.DSN())
	}
}

func (m *Database) Db() (*gorm.DB, error) {
	m.once.Do(func() {
		// Open connection
		db, err := gorm.Open(m.dialector(), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			m.initErr = fmt.Errorf("[ERROR][DB] open %s: %w", m.Driver(), err)
			return
		}

		// Get sqlDB
		var sqlDB *sql.DB
		sqlDB, err = db.DB()
		if err != nil {
			m.initErr = fmt.Errorf("[ERROR][DB] get sql.DB: %w", err)
			return
		}

		// Setting connection pool
		if m.Driver() == DriverSqlite {
			// SQLite serializes writers; an in-memory database also lives only as long as its connection.
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxIdleConns(m.Config.Database.MaxIdleConnection)
			sqlDB.SetMaxOpenConns(m.Config.Database.MaxOpenConnection)
		}
		sqlDB.SetConnMaxLifetime(time.Duration(m.Config.Database.MaxLifeTimeConnection) * time.Second)

		//
		m.db = db
	})
	return m.db, m.initErr
}

func (m *Database) Ping() error {
	db, err := m.Db()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *Database) Close() error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func (m *Database) Migrate(models ...interface{}) error {
	db, err := m.Db()
	if err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}
