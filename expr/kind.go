package expr

import (
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind is the closed set of constant kinds the compilers understand.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindLong
	KindDecimal
	KindString
	KindTime
	KindArray
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Numeric reports whether values of the kind compare as numbers.
func (k ValueKind) Numeric() bool {
	return k == KindInt || k == KindLong || k == KindDecimal
}

// Literal is an evaluated constant with its kind. For arrays Elem holds
// the kind of the elements.
type Literal struct {
	Raw  any
	Kind ValueKind
	Elem ValueKind
}

// Elements returns the items of an array literal.
func (l Literal) Elements() []any {
	if l.Kind != KindArray {
		return nil
	}
	v := reflect.ValueOf(l.Raw)
	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// LiteralOf classifies a Go value.
func LiteralOf(v any) (Literal, error) {
	switch t := v.(type) {
	case nil:
		return Literal{Kind: KindNull}, nil
	case bool:
		return Literal{Raw: t, Kind: KindBool}, nil
	case int, int8, int16, int32, uint8, uint16:
		return Literal{Raw: t, Kind: KindInt}, nil
	case int64, uint, uint32, uint64:
		return Literal{Raw: t, Kind: KindLong}, nil
	case float32, float64, decimal.Decimal:
		return Literal{Raw: t, Kind: KindDecimal}, nil
	case string:
		return Literal{Raw: t, Kind: KindString}, nil
	case time.Time:
		return Literal{Raw: t, Kind: KindTime}, nil
	case *time.Time:
		if t == nil {
			return Literal{Kind: KindNull}, nil
		}
		return Literal{Raw: *t, Kind: KindTime}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elem, err := kindOfType(rv.Type().Elem())
		if err != nil {
			return Literal{}, err
		}
		return Literal{Raw: v, Kind: KindArray, Elem: elem}, nil
	}

	kind, err := kindOfType(rv.Type())
	if err != nil {
		return Literal{}, err
	}
	return Literal{Raw: v, Kind: kind}, nil
}

// kindOfType covers named types, such as enumerations declared over
// strings or integers.
func kindOfType(t reflect.Type) (ValueKind, error) {
	switch t {
	case timeType:
		return KindTime, nil
	case decimalType:
		return KindDecimal, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return KindInt, nil
	case reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return KindLong, nil
	case reflect.Float32, reflect.Float64:
		return KindDecimal, nil
	case reflect.String:
		return KindString, nil
	case reflect.Interface:
		return KindNull, nil
	}
	return KindNull, fmt.Errorf("unsupported constant type %s", t)
}
