package materialize

import (
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reveald/esq"
)

// Into decodes rows into values of R, a struct or a map[string]any.
//
// Struct members are matched to cells by `es` tag, `json` tag or field
// name, ignoring case. Values are coerced to the member type.
func Into[R any](rows []Row) ([]R, error) {
	out := make([]R, 0, len(rows))
	for _, row := range rows {
		var r R
		if err := decodeRow(reflect.ValueOf(&r).Elem(), row); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Document decodes a document source into T.
func Document[T any](source map[string]any) (T, error) {
	var doc T
	data, err := json.Marshal(source)
	if err != nil {
		return doc, fmt.Errorf("encode document source: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode document into %T: %w", doc, err)
	}
	return doc, nil
}

func decodeRow(dst reflect.Value, row Row) error {
	for dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}

	switch dst.Kind() {
	case reflect.Map:
		if dst.Type().Key().Kind() != reflect.String {
			return esq.Malformed("result type %s", dst.Type())
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(dst.Type(), len(row)))
		}
		for _, c := range row {
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := coerce(elem, c.Value); err != nil {
				return esq.Malformed("member %s: %v", c.Name, err)
			}
			dst.SetMapIndex(reflect.ValueOf(c.Name).Convert(dst.Type().Key()), elem)
		}
		return nil
	case reflect.Struct:
		fields := structFields(dst.Type())
		for _, c := range row {
			idx, ok := fields[strings.ToLower(c.Name)]
			if !ok {
				return esq.Malformed("result type %s has no member %s", dst.Type(), c.Name)
			}
			if err := coerce(dst.FieldByIndex(idx), c.Value); err != nil {
				return esq.Malformed("member %s: %v", c.Name, err)
			}
		}
		return nil
	}
	return esq.Malformed("result type %s must be a struct or a map", dst.Type())
}

var fieldCache sync.Map

// structFields indexes the settable fields of t by lower-cased name.
func structFields(t reflect.Type) map[string][]int {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.(map[string][]int)
	}

	fields := make(map[string][]int)
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		names := []string{sf.Name}
		for _, tag := range []string{"es", "json"} {
			if name, _, _ := strings.Cut(sf.Tag.Get(tag), ","); name != "" && name != "-" {
				names = append(names, name)
			}
		}
		for _, name := range names {
			key := strings.ToLower(name)
			if _, taken := fields[key]; !taken {
				fields[key] = sf.Index
			}
		}
	}

	actual, _ := fieldCache.LoadOrStore(t, fields)
	return actual.(map[string][]int)
}

var (
	timeType            = reflect.TypeOf(time.Time{})
	decimalType         = reflect.TypeOf(decimal.Decimal{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// coerce stores v into dst, converting between the value kinds a bucket
// produces (strings, float64 metrics, int64 counts, times) and the
// destination type.
func coerce(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := coerce(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	src := reflect.ValueOf(v)
	if dst.Kind() == reflect.Interface {
		if !src.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
		}
		dst.Set(src)
		return nil
	}

	if dst.Type() == decimalType {
		d, err := toDecimal(v)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(d))
		return nil
	}

	if dst.Type() == timeType {
		t, err := toTime(v)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	}

	if s, ok := v.(string); ok && reflect.PointerTo(dst.Type()).Implements(textUnmarshalerType) {
		return dst.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(toString(v))
		return nil
	case reflect.Bool:
		switch b := v.(type) {
		case bool:
			dst.SetBool(b)
			return nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return err
			}
			dst.SetBool(parsed)
			return nil
		}
		if f, ok := toFloat(src); ok {
			dst.SetBool(f != 0)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := parseNumber(v, src)
		if err != nil {
			return err
		}
		i := int64(math.Round(f))
		if dst.OverflowInt(i) {
			return fmt.Errorf("%v overflows %s", v, dst.Type())
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := parseNumber(v, src)
		if err != nil {
			return err
		}
		if f < 0 || dst.OverflowUint(uint64(math.Round(f))) {
			return fmt.Errorf("%v overflows %s", v, dst.Type())
		}
		dst.SetUint(uint64(math.Round(f)))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := parseNumber(v, src)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil
	}

	if src.Type().ConvertibleTo(dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot convert %T to %s", v, dst.Type())
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	}
	return 0, false
}

func parseNumber(v any, src reflect.Value) (float64, error) {
	if s, ok := v.(string); ok {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	if f, ok := toFloat(src); ok {
		return f, nil
	}
	return 0, fmt.Errorf("%T is not a number", v)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, nil
		}
		ms, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not a time", t)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	if f, ok := toFloat(reflect.ValueOf(v)); ok {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%T is not a time", v)
}

// toDecimal reads sums and averages as decimals. Metric values arrive as
// float64, so the conversion keeps the shortest representation of the float.
func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	}
	if f, ok := toFloat(reflect.ValueOf(v)); ok {
		return decimal.NewFromFloat(f), nil
	}
	return decimal.Decimal{}, fmt.Errorf("cannot convert %T to decimal", v)
}
