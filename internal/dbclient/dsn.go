package dbclient

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"custquery/internal/domain"
)

// sqlDSN returns the database/sql driver name and DSN for a SQL connection.
func sqlDSN(conn *domain.DatabaseConnection, password string) (driverName, dsn string, err error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		if conn.Host == "" {
			return "", "", fmt.Errorf("sqlite: file path (host) is required")
		}
		// WAL + busy timeout so a file shared with a writer stays readable.
		return "sqlite", conn.Host + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	case domain.DatabaseDriverMySQL:
		return "mysql", mysqlDSN(conn, password), nil
	case domain.DatabaseDriverPostgres:
		return "postgres", postgresDSN(conn, password), nil
	default:
		return "", "", fmt.Errorf("not a sql driver: %q", conn.Driver)
	}
}

func hostPort(host string, port, fallback int) string {
	if port == 0 {
		port = fallback
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func mysqlDSN(conn *domain.DatabaseConnection, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = hostPort(conn.Host, conn.Port, 3306)
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN()
}

func postgresDSN(conn *domain.DatabaseConnection, password string) string {
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     hostPort(conn.Host, conn.Port, 5432),
		Path:     "/" + conn.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	return u.String()
}
