package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverMongoDB  DatabaseDriver = "mongodb"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

// DatabaseConnection holds the metadata for connecting to an external
// customer database. The password is supplied separately (config or
// CUSTQUERY_DB_PASSWORD) and never stored here.
type DatabaseConnection struct {
	Name      string         `json:"name"`
	Driver    DatabaseDriver `json:"driver"`
	Host      string         `json:"host"`     // hostname or file path (sqlite)
	Port      int            `json:"port"`     // 0 for sqlite
	Database  string         `json:"database"` // db name or empty for sqlite
	Username  string         `json:"username"`
	SSLMode   string         `json:"sslMode"`
	ExtraJSON string         `json:"extraJson"` // driver-specific options
}
