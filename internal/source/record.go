package source

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"custquery/internal/domain"
)

// Normalised column names. first_name, firstName, "First Name" and
// FirstName all normalise to the same key.
const (
	colFirstName = "firstname"
	colLastName  = "lastname"
	colOrders    = "totalordersplaced"
)

func normalizeColumn(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
}

// columnMap holds the positions of the customer fields in a row.
type columnMap struct {
	first, last, orders int
}

// positionalColumns is used for header-less CSV files.
var positionalColumns = columnMap{first: 0, last: 1, orders: 2}

func mapColumns(columns []string) (columnMap, error) {
	m := columnMap{first: -1, last: -1, orders: -1}
	set := func(pos *int, i int) error {
		if *pos >= 0 {
			return fmt.Errorf("duplicate column: %q and %q name the same field", columns[*pos], columns[i])
		}
		*pos = i
		return nil
	}
	for i, c := range columns {
		var err error
		switch normalizeColumn(c) {
		case colFirstName:
			err = set(&m.first, i)
		case colLastName:
			err = set(&m.last, i)
		case colOrders:
			err = set(&m.orders, i)
		}
		if err != nil {
			return m, err
		}
	}
	switch {
	case m.first < 0:
		return m, fmt.Errorf("missing column %q", "first_name")
	case m.last < 0:
		return m, fmt.Errorf("missing column %q", "last_name")
	case m.orders < 0:
		return m, fmt.Errorf("missing column %q", "total_orders_placed")
	}
	return m, nil
}

func (m columnMap) customer(row []any) (domain.Customer, error) {
	at := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}
	orders, err := toOrderCount(at(m.orders))
	if err != nil {
		return domain.Customer{}, err
	}
	return domain.Customer{
		FirstName:         toString(at(m.first)),
		LastName:          toString(at(m.last)),
		TotalOrdersPlaced: orders,
	}, nil
}

// customerFromFields maps a decoded object (JSON, YAML, BSON) to a Customer.
func customerFromFields(fields map[string]any) (domain.Customer, error) {
	columns := make([]string, 0, len(fields))
	row := make([]any, 0, len(fields))
	for k, v := range fields {
		columns = append(columns, k)
		row = append(row, v)
	}
	m, err := mapColumns(columns)
	if err != nil {
		return domain.Customer{}, err
	}
	return m.customer(row)
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

// toOrderCount converts a driver or decoder value to a non-negative order
// count. Missing values count as zero.
func toOrderCount(v any) (int, error) {
	var n int64
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int:
		n = int64(val)
	case int8:
		n = int64(val)
	case int16:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case uint:
		n = int64(val)
	case uint8:
		n = int64(val)
	case uint16:
		n = int64(val)
	case uint32:
		n = int64(val)
	case uint64:
		if val > math.MaxInt64 {
			return 0, fmt.Errorf("order count %d out of range", val)
		}
		n = int64(val)
	case float32:
		return floatCount(float64(val))
	case float64:
		return floatCount(val)
	case json.Number:
		return stringCount(val.String())
	case string:
		return stringCount(val)
	case []byte:
		return stringCount(string(val))
	default:
		return 0, fmt.Errorf("unsupported order count type %T", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative order count %d", n)
	}
	return int(n), nil
}

func floatCount(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("order count %v is not a whole number", f)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative order count %v", f)
	}
	return int(f), nil
}

func stringCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return toOrderCount(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse order count %q: %w", s, err)
	}
	return floatCount(f)
}
