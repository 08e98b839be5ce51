// Package mapping resolves document properties to Elasticsearch field names
// and holds the per-type index declarations.
//
// Field names come from the `es` struct tag, then the `json` tag, then the
// Go field name:
//
//	type Sale struct {
//	    Category  string    `es:"category,keyword"`
//	    Amount    float64   `json:"amount"`
//	    Note      string    `es:",text"`
//	    CreatedAt time.Time `json:"createdAt"`
//	}
package mapping

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reveald/esq"
)

// Kind is the declared category of a field.
type Kind int

const (
	KindDefault Kind = iota
	KindKeyword
	KindText
	KindDate
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindKeyword:
		return "keyword"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	case KindNumber:
		return "number"
	default:
		return "default"
	}
}

// ParseKind parses a kind name as used in `es` tags.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "keyword":
		return KindKeyword, true
	case "text":
		return KindText, true
	case "date":
		return KindDate, true
	case "number":
		return KindNumber, true
	case "", "default":
		return KindDefault, true
	}
	return KindDefault, false
}

const keywordSuffix = ".keyword"

// FieldRef is a resolved backend field.
type FieldRef struct {
	Name string
	Kind Kind
	Type reflect.Type
}

// Exact returns the field to use for exact-match aggregations: the
// keyword sub-field of a keyword-declared property, else the field itself.
func (f FieldRef) Exact() string {
	if f.Kind == KindKeyword {
		return f.Name + keywordSuffix
	}
	return f.Name
}

// IsDate reports whether the field holds dates.
func (f FieldRef) IsDate() bool {
	return f.Kind == KindDate || f.Type == timeType
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

type fieldInfo struct {
	goName string
	name   string
	kind   Kind
	typ    reflect.Type
}

type typeInfo struct {
	fields  []fieldInfo
	byName  map[string]int
	byLower map[string]int
}

// Resolver maps property paths to backend fields.
//
// Struct metadata is read once per type and cached; a Resolver is safe
// for concurrent use.
type Resolver struct {
	cache sync.Map
	kinds map[string]Kind
	namer func(string) string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFieldKind declares the kind of a field of dynamic documents
// (map[string]any), which carry no struct tags.
func WithFieldKind(field string, kind Kind) Option {
	return func(r *Resolver) {
		r.kinds[field] = kind
	}
}

// WithFieldNamer adjusts the names of untagged struct fields.
func WithFieldNamer(namer func(string) string) Option {
	return func(r *Resolver) {
		r.namer = namer
	}
}

// NewResolver returns a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		kinds: make(map[string]Kind),
		namer: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a property path of a document type to its backend field.
//
// A path that descends into a time.Time property stops there: the remaining
// members, such as "Month", are returned as the rest.
func (r *Resolver) Resolve(t reflect.Type, path []string) (FieldRef, []string, error) {
	if len(path) == 0 {
		return FieldRef{}, nil, esq.Unsupported("empty property path")
	}

	t = indirect(t)
	if t.Kind() == reflect.Map || t.Kind() == reflect.Interface {
		return r.resolveDynamic(path), r.dynamicRest(path), nil
	}

	var names []string
	cur := t
	for i, member := range path {
		cur = indirect(cur)
		for cur.Kind() == reflect.Slice || cur.Kind() == reflect.Array {
			cur = indirect(cur.Elem())
		}
		if cur.Kind() != reflect.Struct {
			return FieldRef{}, nil, esq.Unsupported("property %s of non-struct type %s", member, cur)
		}

		info := r.typeInfo(cur)
		fi, ok := info.lookup(member)
		if !ok {
			return FieldRef{}, nil, esq.Unsupported("unknown property %s on %s", member, cur)
		}
		names = append(names, fi.name)

		ft := indirect(fi.typ)
		last := i == len(path)-1
		if last || ft == timeType || fi.kind == KindDate {
			return FieldRef{
				Name: strings.Join(names, "."),
				Kind: fi.kind,
				Type: ft,
			}, path[i+1:], nil
		}
		cur = ft
	}

	return FieldRef{}, nil, esq.Unsupported("property path %s", strings.Join(path, "."))
}

// resolveDynamic treats the path as dotted field names, stopping at the
// first member declared as a date.
func (r *Resolver) resolveDynamic(path []string) FieldRef {
	for i := range path {
		name := strings.Join(path[:i+1], ".")
		if kind, ok := r.kinds[name]; ok && (kind == KindDate || i == len(path)-1) {
			ref := FieldRef{Name: name, Kind: kind}
			if kind == KindDate {
				ref.Type = timeType
			}
			return ref
		}
	}
	return FieldRef{Name: strings.Join(path, ".")}
}

func (r *Resolver) dynamicRest(path []string) []string {
	for i := range path {
		name := strings.Join(path[:i+1], ".")
		if kind, ok := r.kinds[name]; ok && kind == KindDate {
			return path[i+1:]
		}
	}
	return nil
}

func (info *typeInfo) lookup(member string) (fieldInfo, bool) {
	if i, ok := info.byName[member]; ok {
		return info.fields[i], true
	}
	if i, ok := info.byLower[strings.ToLower(member)]; ok {
		return info.fields[i], true
	}
	return fieldInfo{}, false
}

func (r *Resolver) typeInfo(t reflect.Type) *typeInfo {
	if cached, ok := r.cache.Load(t); ok {
		return cached.(*typeInfo)
	}

	info := &typeInfo{
		byName:  make(map[string]int),
		byLower: make(map[string]int),
	}
	for _, fi := range r.collectFields(t) {
		info.byName[fi.goName] = len(info.fields)
		info.fields = append(info.fields, fi)
	}
	// Backend names and lower-cased Go names are secondary keys; Go names win.
	for i, fi := range info.fields {
		for _, key := range []string{strings.ToLower(fi.goName), strings.ToLower(fi.name)} {
			if _, taken := info.byLower[key]; !taken {
				info.byLower[key] = i
			}
		}
	}

	actual, _ := r.cache.LoadOrStore(t, info)
	return actual.(*typeInfo)
}

func (r *Resolver) collectFields(t reflect.Type) []fieldInfo {
	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		if sf.Anonymous && sf.Tag.Get("es") == "" && sf.Tag.Get("json") == "" {
			if et := indirect(sf.Type); et.Kind() == reflect.Struct && et != timeType {
				fields = append(fields, r.collectFields(et)...)
				continue
			}
		}

		name, kind, skip := r.fieldName(sf)
		if skip {
			continue
		}
		if kind == KindDefault {
			kind = inferKind(sf.Type)
		}

		fields = append(fields, fieldInfo{
			goName: sf.Name,
			name:   name,
			kind:   kind,
			typ:    sf.Type,
		})
	}
	return fields
}

func (r *Resolver) fieldName(sf reflect.StructField) (string, Kind, bool) {
	kind := KindDefault
	name := ""

	if tag, ok := sf.Tag.Lookup("es"); ok {
		if tag == "-" {
			return "", kind, true
		}
		tagName, opts := parseTag(tag)
		name = tagName
		for _, opt := range opts {
			if k, ok := ParseKind(opt); ok && k != KindDefault {
				kind = k
			}
		}
	}

	if name == "" {
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if tag == "-" {
				return "", kind, true
			}
			name, _ = parseTag(tag)
		}
	}

	if name == "" {
		name = r.namer(sf.Name)
	}
	return name, kind, false
}

func parseTag(tag string) (string, []string) {
	parts := strings.Split(tag, ",")
	return parts[0], parts[1:]
}

func inferKind(t reflect.Type) Kind {
	t = indirect(t)
	switch t {
	case timeType:
		return KindDate
	case decimalType:
		return KindNumber
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	}
	return KindDefault
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
