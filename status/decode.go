package status

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const fieldSeparator = "^"

var (
	ErrMalformedRecord = errors.New("malformed record")
	ErrMalformedLog    = errors.New("malformed log")
)

// RecordError reports a record that does not match its schema. Raw holds the
// offending record as received from the modem.
type RecordError struct {
	Raw   string
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed record %q: %v", e.Raw, e.Err)
	}
	return fmt.Sprintf("malformed record %q: field %s: %v", e.Raw, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func (e *RecordError) Is(target error) bool { return target == ErrMalformedRecord }

type Kind int

const (
	String Kind = iota
	Integer
	Decimal
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Decimal:
		return "decimal"
	default:
		return "unknown"
	}
}

type Field struct {
	Name string
	Kind Kind
}

// Schema is the ordered list of fields making up one ^-separated record.
type Schema []Field

// Fields holds the typed values of one decoded record, indexed like its Schema.
type Fields []interface{}

func (f Fields) Text(i int) string { return f[i].(string) }

func (f Fields) Int(i int) int64 { return f[i].(int64) }

func (f Fields) Decimal(i int) decimal.Decimal { return f[i].(decimal.Decimal) }

// Decode splits raw on ^ and converts each part according to schema. The last
// field has any trailing separators removed before conversion; anything
// beyond it stays part of the last field.
func Decode(raw string, schema Schema) (Fields, error) {
	fields := make(Fields, len(schema))
	rest := raw
	for i, field := range schema {
		var part string
		if i == len(schema)-1 {
			part = strings.TrimRight(rest, fieldSeparator)
		} else {
			idx := strings.Index(rest, fieldSeparator)
			if idx < 0 {
				return nil, &RecordError{
					Raw:   raw,
					Field: schema[i+1].Name,
					Err:   fmt.Errorf("expected %d fields, got %d", len(schema), i+1),
				}
			}
			part, rest = rest[:idx], rest[idx+len(fieldSeparator):]
		}

		value, err := convert(part, field.Kind)
		if err != nil {
			return nil, &RecordError{Raw: raw, Field: field.Name, Err: err}
		}
		fields[i] = value
	}
	return fields, nil
}

func convert(s string, kind Kind) (interface{}, error) {
	switch kind {
	case String:
		return s, nil
	case Integer:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", kind, s)
		}
		return v, nil
	case Decimal:
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", kind, s)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s field kind %d", kind, int(kind))
	}
}
