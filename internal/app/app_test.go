package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"custquery/internal/domain"
)

const customersJSON = `[
  {"firstName": "Foo", "lastName": "Bar", "totalOrdersPlaced": 600},
  {"firstName": "Pete", "lastName": "Whatever", "totalOrdersPlaced": 3}
]`

type env struct {
	dir      string
	config   string
	jsonFile string
	csvFile  string
}

func newEnv(t *testing.T) env {
	t.Helper()
	for _, key := range []string{"CUSTQUERY_DB", "CUSTQUERY_LOG_LEVEL", "CUSTQUERY_SOURCE_TYPE", "CUSTQUERY_DB_PASSWORD"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	e := env{
		dir:      dir,
		config:   filepath.Join(dir, "config.yaml"),
		jsonFile: filepath.Join(dir, "customers.json"),
		csvFile:  filepath.Join(dir, "customers.csv"),
	}
	cfg := "database:\n  path: " + filepath.Join(dir, "reports.db") + "\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o600))
	require.NoError(t, os.WriteFile(e.jsonFile, []byte(customersJSON), 0o600))
	require.NoError(t, os.WriteFile(e.csvFile, []byte("first_name,last_name,total_orders_placed\nFoo,Bar,600\nPete,Whatever,3\n"), 0o600))
	return e
}

// run executes the CLI with args and returns stdout and stderr.
func (e env) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	return e.runContext(context.Background(), t, stdin, args...)
}

func (e env) runContext(ctx context.Context, t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestNames_AllForms(t *testing.T) {
	e := newEnv(t)
	for _, form := range []string{"stages", "fluent", "comprehension"} {
		out, _, err := e.run(t, "", "names", "-f", e.jsonFile, "--form", form, "-o", "json")
		require.NoError(t, err, form)
		assert.Equal(t, []string{"Foo Bar"}, decode[[]string](t, out), form)
	}

	out, _, err := e.run(t, "", "names", "-f", e.csvFile, "--threshold", "0")
	require.NoError(t, err)
	assert.Equal(t, "Foo Bar\nPete Whatever\n", out)

	_, _, err = e.run(t, "", "names", "-f", e.jsonFile, "--form", "sql")
	assert.Error(t, err)
}

func TestAwesomeAndCheapest(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.run(t, "", "awesome", "-f", e.csvFile, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []domain.Customer{{FirstName: "Foo", LastName: "Bar", TotalOrdersPlaced: 600}}, decode[[]domain.Customer](t, out))

	out, _, err = e.run(t, "", "cheapest", "-f", e.jsonFile)
	require.NoError(t, err)
	assert.Contains(t, out, "FIRST NAME")
	assert.Contains(t, out, "Pete")
	assert.NotContains(t, out, "Foo")
}

func TestSearch(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.run(t, "", "search", "-f", e.jsonFile, "--first-name", "Pete", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []domain.Customer{{FirstName: "Pete", LastName: "Whatever", TotalOrdersPlaced: 3}}, decode[[]domain.Customer](t, out))

	out, _, err = e.run(t, "", "search", "-f", e.jsonFile, "-o", "json")
	require.NoError(t, err)
	assert.Len(t, decode[[]domain.Customer](t, out), 2)

	out, _, err = e.run(t, "", "search", "-f", e.jsonFile, "--min-orders", "1000", "-o", "json")
	require.NoError(t, err)
	assert.Empty(t, decode[[]domain.Customer](t, out))
}

func TestMemorySourceFromFlags(t *testing.T) {
	e := newEnv(t)
	out, _, err := e.run(t, "", "awesome",
		"--source-type", "memory",
		"--source-config", `{"records":[{"firstName":"Zed","lastName":"Z","totalOrdersPlaced":900},{"firstName":"Amy","lastName":"A","totalOrdersPlaced":501}]}`,
		"-o", "json")
	require.NoError(t, err)
	got := decode[[]domain.Customer](t, out)
	require.Len(t, got, 2)
	assert.Equal(t, "Amy", got[0].FirstName)
	assert.Equal(t, "Zed", got[1].FirstName)

	_, _, err = e.run(t, "", "awesome", "--source-type", "memory", "--source-config", "{not json")
	assert.Error(t, err)
}

func TestOrdersByLastName(t *testing.T) {
	e := newEnv(t)
	out, _, err := e.run(t, "", "orders-by-last-name", "-f", e.jsonFile, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Bar": 600, "Whatever": 3}, decode[map[string]int](t, out))

	dup := filepath.Join(e.dir, "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`[{"firstName":"A","lastName":"Same","totalOrdersPlaced":1},{"firstName":"B","lastName":"Same","totalOrdersPlaced":2}]`), 0o600))
	_, _, err = e.run(t, "", "orders-by-last-name", "-f", dup)
	assert.Error(t, err)
}

func TestInvert(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.run(t, "", "invert", `{"Bar":600,"Whatever":3}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"600":"Bar","3":"Whatever"}`, out)

	out, stderr, err := e.run(t, `{"a":"x","b":"x"}`, "invert")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":"b"}`, out)
	assert.Contains(t, stderr, "x")

	out, _, err = e.run(t, `{"a":"x","b":"x"}`, "invert", "-", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"inverted":{"x":"b"},"collisions":["x"]}`, out)

	_, _, err = e.run(t, `{"a":"x","b":"x"}`, "invert", "--strict")
	assert.Error(t, err)

	file := filepath.Join(e.dir, "mapping.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"k":"v"}`), 0o600))
	out, _, err = e.run(t, "", "invert", file)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"k"}`, out)
}

func TestSources(t *testing.T) {
	e := newEnv(t)
	out, _, err := e.run(t, "", "sources", "-o", "json")
	require.NoError(t, err)

	var specs []struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &specs))
	types := make([]string, 0, len(specs))
	for _, s := range specs {
		types = append(types, s.Type)
	}
	assert.Equal(t, []string{"csv_file", "database", "json_file", "memory"}, types)
}

func TestCheck(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.run(t, "", "check", "-f", e.csvFile)
	require.NoError(t, err)
	assert.Equal(t, "csv_file source ok\n", out)

	dbPath := filepath.Join(e.dir, "customers.db")
	out, _, err = e.run(t, "", "check", "--source-type", "database",
		"--source-config", `{"driver":"sqlite","host":"`+dbPath+`"}`, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"source": "database", "status": "ok"}, decode[map[string]string](t, out))

	_, _, err = e.run(t, "", "check", "-f", filepath.Join(e.dir, "missing.json"))
	assert.Error(t, err)
}

func TestReportLifecycle(t *testing.T) {
	e := newEnv(t)

	out, _, err := e.run(t, "", "report", "create",
		"--name", "big", "-f", e.jsonFile, "--min-orders", "100", "--returns", "names", "-o", "json")
	require.NoError(t, err)
	created := decode[domain.Report](t, out)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "json_file", created.SourceType)
	assert.Equal(t, domain.ReportOutputNames, created.Output)

	_, _, err = e.run(t, "", "report", "create", "--name", "big", "-f", e.jsonFile)
	assert.Error(t, err, "names are unique")

	out, stderr, err := e.run(t, "", "report", "run", "big", "-o", "json")
	require.NoError(t, err)
	result := decode[domain.ReportResult](t, out)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, []string{"Foo Bar"}, result.Names)
	assert.Equal(t, 2, result.RowsRead)
	assert.Equal(t, 1, result.RowsMatched)
	assert.Contains(t, stderr, "read 2, matched 1")

	out, _, err = e.run(t, "", "report", "logs", created.ID, "-o", "json")
	require.NoError(t, err)
	logs := decode[[]domain.ReportRunLog](t, out)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.StatusSuccess, logs[0].Status)

	out, _, err = e.run(t, "", "report", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "big")
	assert.Contains(t, out, "success")

	_, _, err = e.run(t, "", "report", "delete", "big")
	require.NoError(t, err)

	out, _, err = e.run(t, "", "report", "list", "-o", "json")
	require.NoError(t, err)
	assert.Empty(t, decode[[]domain.Report](t, out))

	_, _, err = e.run(t, "", "report", "run", "big")
	assert.Error(t, err)
}

func TestReportCreate_Validation(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run(t, "", "report", "create", "-f", e.jsonFile)
	assert.Error(t, err, "name is required")

	_, _, err = e.run(t, "", "report", "create", "--name", "bad", "-f", e.jsonFile, "--order-by", "age")
	assert.Error(t, err)

	_, _, err = e.run(t, "", "report", "create", "--name", "bad", "-f", e.jsonFile, "--trigger", "schedule", "--trigger-config", "whenever")
	assert.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.run(t, "", "report", "create", "--name", "nightly", "-f", e.jsonFile,
		"--trigger", "schedule", "--trigger-config", "0 2 * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, _, err := e.runContext(ctx, t, "", "serve")
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestReloadLogLevel(t *testing.T) {
	e := newEnv(t)
	a := &App{configPath: e.config, format: "text"}
	require.NoError(t, a.setup(nil, nil))
	assert.Equal(t, zapcore.ErrorLevel, a.level.Level())

	cfg := "database:\n  path: " + filepath.Join(e.dir, "reports.db") + "\nlogging:\n  level: debug\n"
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o600))
	require.NoError(t, a.reloadLogLevel())
	assert.Equal(t, zapcore.DebugLevel, a.level.Level())
	assert.True(t, a.logger.Core().Enabled(zapcore.DebugLevel))

	a.logLevel = "warn"
	require.NoError(t, a.reloadLogLevel())
	assert.Equal(t, zapcore.WarnLevel, a.level.Level())

	require.NoError(t, os.WriteFile(e.config, []byte("logging:\n  level: loud\n"), 0o600))
	a.logLevel = ""
	assert.ErrorContains(t, a.reloadLogLevel(), "invalid log level")
	assert.Equal(t, zapcore.WarnLevel, a.level.Level())
}

func TestInvalidFlags(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run(t, "", "sources", "-o", "yaml")
	assert.Error(t, err)

	_, _, err = e.run(t, "", "sources", "--log-level", "loud")
	assert.Error(t, err)

	_, _, err = e.run(t, "", "names", "--source-type", "ftp")
	assert.Error(t, err)
}

func TestReportCreate_NeverStoresPassword(t *testing.T) {
	e := newEnv(t)
	t.Setenv("CUSTQUERY_DB_PASSWORD", "hunter2")

	_, _, err := e.run(t, "", "report", "create", "--name", "from-env", "-f", e.jsonFile)
	require.NoError(t, err)
	_, _, err = e.run(t, "", "report", "create", "--name", "inline",
		"--source-type", "database",
		"--source-config", `{"driver":"postgres","host":"db","password":"hunter2"}`)
	require.NoError(t, err)

	out, _, err := e.run(t, "", "report", "list", "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	reports := decode[[]domain.Report](t, out)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.NotContains(t, r.SourceConfig, "password", r.Name)
	}
}
