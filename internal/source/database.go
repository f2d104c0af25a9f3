package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"custquery/internal/dbclient"
	"custquery/internal/domain"
	"custquery/internal/secret"
)

// ── Database Source ─────────────────────────────────────────
// Reads customers through a read-only dbclient connector, one page at a time.

const (
	defaultSQLQuery   = "SELECT first_name, last_name, total_orders_placed FROM customers"
	defaultMongoQuery = `{"collection":"customers"}`
	defaultFetchSize  = 500
)

type databaseFactory struct{}

func init() { Register(databaseFactory{}) }

func (databaseFactory) Spec() Spec {
	return Spec{
		Type:  "database",
		Label: "Database",
		ConfigFields: []ConfigField{
			{Key: "driver", Label: "Driver", Type: "select", Required: true, Options: []string{"sqlite", "mysql", "postgres", "mongodb"}},
			{Key: "host", Label: "Host", Type: "string", Required: true, Help: "Hostname, MongoDB URI, or file path for sqlite"},
			{Key: "port", Label: "Port", Type: "number", Required: false},
			{Key: "database", Label: "Database", Type: "string", Required: false},
			{Key: "username", Label: "Username", Type: "string", Required: false},
			{Key: "password", Label: "Password", Type: "password", Required: false, Help: "Falls back to CUSTQUERY_DB_PASSWORD"},
			{Key: "passwordSecret", Label: "Password Secret", Type: "string", Required: false, Help: "Secret name read from CUSTQUERY_SECRET_<NAME> or the macOS keychain"},
			{Key: "sslMode", Label: "SSL Mode", Type: "select", Required: false, Options: []string{"disable", "require", "verify-full"}, Default: "disable"},
			{Key: "extraJson", Label: "Extra Options", Type: "textarea", Required: false, Help: `MongoDB URI options as a JSON object, e.g. {"authSource":"admin"}`},
			{Key: "query", Label: "Query", Type: "textarea", Required: false, Help: "SELECT statement, or MongoDB JSON query. Defaults to the customers table/collection"},
			{Key: "fetchSize", Label: "Fetch Size", Type: "number", Required: false, Default: "500"},
		},
	}
}

func (databaseFactory) New(cfg Config, logger *zap.Logger) (Source, error) {
	driver := domain.DatabaseDriver(strings.ToLower(cfg.getString("driver", "")))
	switch driver {
	case domain.DatabaseDriverSQLite, domain.DatabaseDriverMySQL, domain.DatabaseDriverPostgres, domain.DatabaseDriverMongoDB:
	case "":
		return nil, fmt.Errorf("driver is required")
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	host := cfg.getString("host", "")
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	port, err := cfg.getInt("port", 0)
	if err != nil {
		return nil, err
	}
	fetchSize, err := cfg.getInt("fetchSize", defaultFetchSize)
	if err != nil {
		return nil, err
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}

	password := cfg.getString("password", "")
	if name := cfg.getString("passwordSecret", ""); password == "" && name != "" {
		v, ok, err := secret.Default().Lookup(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("password secret %q not found (set %s)", name, secret.EnvName(name))
		}
		password = v
	}
	if password == "" {
		password = os.Getenv(secret.DBPasswordEnv)
	}

	extra, err := cfg.getOptions("extraJson")
	if err != nil {
		return nil, err
	}

	q := defaultSQLQuery
	if driver == domain.DatabaseDriverMongoDB {
		q = defaultMongoQuery
	}

	return &databaseSource{
		conn: &domain.DatabaseConnection{
			Name:      cfg.getString("name", string(driver)),
			Driver:    driver,
			Host:      host,
			Port:      port,
			Database:  cfg.getString("database", ""),
			Username:  cfg.getString("username", ""),
			SSLMode:   cfg.getString("sslMode", ""),
			ExtraJSON: extra,
		},
		password:  password,
		query:     cfg.getString("query", q),
		fetchSize: fetchSize,
		logger:    logger,
	}, nil
}

type databaseSource struct {
	conn      *domain.DatabaseConnection
	password  string
	query     string
	fetchSize int
	logger    *zap.Logger
}

// Ping connects and checks the server answers, without running the query.
func (s *databaseSource) Ping(ctx context.Context) (err error) {
	if s == nil {
		return errNilReceiver
	}
	connector, err := dbclient.NewConnector(s.conn, s.password, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := connector.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	if err := connector.TestConnection(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.conn.Driver, err)
	}
	return nil
}

func (s *databaseSource) Open(ctx context.Context) (Handle, error) {
	if s == nil {
		return nil, errNilReceiver
	}
	connector, err := dbclient.NewConnector(s.conn, s.password, s.logger)
	if err != nil {
		return nil, err
	}
	page, err := connector.Execute(ctx, s.query, s.fetchSize)
	if err != nil {
		connector.Close()
		return nil, fmt.Errorf("execute: %w", err)
	}

	var columns columnMap
	if len(page.Columns) > 0 {
		if columns, err = mapColumns(page.Columns); err != nil {
			connector.Close()
			return nil, err
		}
	}

	i := 0
	return &streamHandle{
		next: func(ctx context.Context) (domain.Customer, bool, error) {
			for i >= len(page.Rows) {
				if !page.HasMore {
					return domain.Customer{}, false, nil
				}
				next, err := connector.FetchMore(ctx, s.fetchSize)
				if err != nil {
					return domain.Customer{}, false, fmt.Errorf("fetch: %w", err)
				}
				s.logger.Debug("page fetched", zap.Int("rows", len(next.Rows)), zap.Int("total", next.TotalFetched))
				page, i = next, 0
				// Mongo pages derive columns from their own documents.
				if len(page.Columns) > 0 {
					if columns, err = mapColumns(page.Columns); err != nil {
						return domain.Customer{}, false, err
					}
				}
			}
			c, err := columns.customer(page.Rows[i])
			i++
			return c, err == nil, err
		},
		close:  connector.Close,
		logger: s.logger,
	}, nil
}
