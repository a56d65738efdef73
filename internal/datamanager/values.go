package datamanager

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/payables/internal/shared"
)

// Record is one row keyed by column name.
type Record map[string]any

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05", "2006-01-02"}

func invalid(col Column, raw any) error {
	return fmt.Errorf("%w: %s: invalid %s value %v", shared.ErrValidation, col.Name, col.Kind, raw)
}

// convert turns a JSON or spreadsheet value into the Go type stored for col.
// Empty strings and nil become nil.
func convert(col Column, raw any) (any, error) {
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
		if raw == "" {
			return nil, nil
		}
	}
	if raw == nil {
		return nil, nil
	}
	switch col.Kind {
	case KindText:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	case KindInt:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, invalid(col, raw)
			}
			return int64(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, invalid(col, raw)
			}
			return n, nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				// spreadsheets often write integers as 12.0
				f, ferr := strconv.ParseFloat(v, 64)
				if ferr != nil || f != math.Trunc(f) {
					return nil, invalid(col, raw)
				}
				n = int64(f)
			}
			return n, nil
		}
	case KindDecimal:
		switch v := raw.(type) {
		case decimal.Decimal:
			return v, nil
		case float64:
			return decimal.NewFromFloat(v), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case json.Number:
			d, err := decimal.NewFromString(v.String())
			if err != nil {
				return nil, invalid(col, raw)
			}
			return d, nil
		case string:
			d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
			if err != nil {
				return nil, invalid(col, raw)
			}
			return d, nil
		}
	case KindDate, KindTimestamp:
		var t time.Time
		switch v := raw.(type) {
		case time.Time:
			t = v
		case string:
			var err error
			t, err = parseTime(v)
			if err != nil {
				return nil, invalid(col, raw)
			}
		default:
			return nil, invalid(col, raw)
		}
		if col.Kind == KindDate {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		return t, nil
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case float64:
			return v != 0, nil
		case int64:
			return v != 0, nil
		case string:
			switch strings.ToLower(v) {
			case "yes", "y":
				return true, nil
			case "no", "n":
				return false, nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, invalid(col, raw)
			}
			return b, nil
		}
	}
	return nil, invalid(col, raw)
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// formatCell renders a stored value for CSV export.
func formatCell(col Column, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		if col.Kind == KindDate {
			return t.Format("2006-01-02")
		}
		return t.UTC().Format(time.RFC3339)
	case decimal.Decimal:
		return t.StringFixed(2)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// prepared holds the validated columns and arguments of one write.
type prepared struct {
	columns []string
	args    []any
}

func (p prepared) value(column string) (any, bool) {
	for i, c := range p.columns {
		if c == column {
			return p.args[i], true
		}
	}
	return nil, false
}

// prepare validates values against t. When strict is false unknown and
// read-only columns are dropped instead of rejected. insert drops nil
// values so database defaults apply.
func prepare(t Table, values Record, insert, strict bool, hash func(string) (string, error)) (prepared, error) {
	for name := range values {
		col, ok := t.Column(name)
		if !ok && strict {
			return prepared{}, fmt.Errorf("%w: unknown column %q", shared.ErrValidation, name)
		}
		if ok && col.ReadOnly && strict && !col.Primary {
			return prepared{}, fmt.Errorf("%w: column %q is read-only", shared.ErrValidation, name)
		}
	}
	var out prepared
	for _, col := range t.Writable() {
		raw, present := values[col.Name]
		if !present {
			if insert && col.Required {
				return prepared{}, fmt.Errorf("%w: %s is required", shared.ErrValidation, col.Name)
			}
			continue
		}
		v, err := convert(col, raw)
		if err != nil {
			return prepared{}, err
		}
		if v == nil {
			if col.Required {
				return prepared{}, fmt.Errorf("%w: %s is required", shared.ErrValidation, col.Name)
			}
			if insert {
				continue
			}
		}
		if col.Secret && v != nil {
			if hash == nil {
				return prepared{}, fmt.Errorf("%w: %s cannot be written", shared.ErrValidation, col.Name)
			}
			if v, err = hash(v.(string)); err != nil {
				return prepared{}, err
			}
		}
		out.columns = append(out.columns, col.Name)
		out.args = append(out.args, v)
	}
	if len(out.columns) == 0 {
		return prepared{}, fmt.Errorf("%w: no values to write", shared.ErrValidation)
	}
	return out, nil
}
