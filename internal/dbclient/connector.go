package dbclient

import (
	"context"

	"go.uber.org/zap"

	"custquery/internal/domain"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
}

// Connector is a read-only, paged view of an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a read query, opens a cursor and returns the first
	// fetchSize rows. Write statements are rejected.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
func NewConnector(conn *domain.DatabaseConnection, password string, logger *zap.Logger) (Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("driver", string(conn.Driver)))

	if conn.Driver == domain.DatabaseDriverMongoDB {
		return newMongoConnector(conn, password, logger)
	}
	driverName, dsn, err := sqlDSN(conn, password)
	if err != nil {
		return nil, err
	}
	return newSQLConnector(driverName, dsn, logger)
}
