package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"custquery/internal/domain"
)

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	logger *zap.Logger

	mu      sync.Mutex
	cursor  *mongo.Cursor
	fetched int
}

// mongoQuery is the JSON form of a MongoDB read:
//
//	{"collection":"customers","filter":{"totalOrdersPlaced":{"$gt":5}}}
//	{"collection":"customers","operation":"aggregate","pipeline":[...]}
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default) or aggregate
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Pipeline   []any          `json:"pipeline,omitempty"`
}

// mongoURI builds the connection URI and resolves the database name.
// A host that already is a mongodb:// or mongodb+srv:// URI is used as is,
// with <password> / <db_password> placeholders filled in.
func mongoURI(conn *domain.DatabaseConnection, password string) (uri, dbName string) {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri = conn.Host
		if password != "" {
			uri = strings.NewReplacer("<password>", password, "<db_password>", password).Replace(uri)
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", conn.Username, password, conn.Host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%d", conn.Host, port)
		}
		// extraJson carries authSource, replicaSet and similar options.
		if conn.ExtraJSON != "" && conn.ExtraJSON != "{}" {
			var extras map[string]string
			if json.Unmarshal([]byte(conn.ExtraJSON), &extras) == nil && len(extras) > 0 {
				keys := make([]string, 0, len(extras))
				for k := range extras {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				params := make([]string, 0, len(keys))
				for _, k := range keys {
					params = append(params, k+"="+extras[k])
				}
				uri += "/?" + strings.Join(params, "&")
			}
		}
	}

	dbName = conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	return uri, dbName
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params,
// defaulting to "test" like the mongo shell.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	if slash := strings.Index(rest, "/"); slash != -1 {
		path := rest[slash+1:]
		if q := strings.Index(path, "?"); q != -1 {
			path = path[:q]
		}
		if path != "" {
			return path
		}
	}
	return "test"
}

func newMongoConnector(conn *domain.DatabaseConnection, password string, logger *zap.Logger) (*mongoConnector, error) {
	uri, dbName := mongoURI(conn, password)

	logURI := uri
	if password != "" {
		logURI = strings.ReplaceAll(logURI, password, "***")
	}
	logger.Info("connecting to mongodb", zap.String("uri", logURI), zap.String("database", dbName))

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName, logger: logger}, nil
}

// unmarshalEJSON converts Extended JSON types ($oid, $date, $numberLong, ...)
// inside a decoded JSON object into their BSON equivalents.
func unmarshalEJSON(field map[string]any) (map[string]any, error) {
	if field == nil {
		return nil, nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("extended json: %w", err)
	}
	result := make(map[string]any, len(doc))
	for _, elem := range doc {
		result[elem.Key] = elem.Value
	}
	return result, nil
}

func parseMongoQuery(query string) (*mongoQuery, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	if mq.Operation == "" {
		mq.Operation = "find"
	}
	if mq.Operation != "find" && mq.Operation != "aggregate" {
		return nil, fmt.Errorf("read-only connector: unsupported operation %q", mq.Operation)
	}

	var err error
	if mq.Filter, err = unmarshalEJSON(mq.Filter); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if mq.Projection, err = unmarshalEJSON(mq.Projection); err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	if mq.Sort, err = unmarshalEJSON(mq.Sort); err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	return &mq, nil
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	mq, err := parseMongoQuery(query)
	if err != nil {
		return nil, err
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}

	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	var cursor *mongo.Cursor
	switch mq.Operation {
	case "aggregate":
		pipeline := mq.Pipeline
		if pipeline == nil {
			pipeline = []any{}
		}
		cursor, err = coll.Aggregate(ctx, pipeline, options.Aggregate().SetBatchSize(int32(fetchSize)))
	default:
		opts := options.Find().SetBatchSize(int32(fetchSize))
		if mq.Projection != nil {
			opts.SetProjection(mq.Projection)
		}
		if mq.Sort != nil {
			opts.SetSort(mq.Sort)
		}
		filter := mq.Filter
		if filter == nil {
			filter = map[string]any{}
		}
		cursor, err = coll.Find(ctx, filter, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mq.Operation, err)
	}

	m.cursor = cursor
	m.fetched = 0
	m.logger.Debug("cursor opened", zap.String("collection", mq.Collection), zap.String("operation", mq.Operation))

	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, fmt.Errorf("no active cursor: execute a query first")
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	return m.fetchBatchLocked(ctx, fetchSize)
}

// fetchBatchLocked decodes up to fetchSize documents. Columns are the union
// of document keys, _id first and the rest alphabetical.
func (m *mongoConnector) fetchBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.M
	for len(docs) < fetchSize && m.cursor.Next(ctx) {
		var doc bson.M
		if err := m.cursor.Decode(&doc); err != nil {
			m.closeCursorLocked(ctx)
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		m.closeCursorLocked(ctx)
		return nil, fmt.Errorf("cursor: %w", err)
	}

	m.fetched += len(docs)

	seen := map[string]bool{}
	var columns []string
	for _, doc := range docs {
		for k := range doc {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	slices.SortFunc(columns, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "_id":
			return -1
		case b == "_id":
			return 1
		default:
			return strings.Compare(a, b)
		}
	})

	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = doc[col]
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
