package mapping

import (
	"reflect"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

// PropertyMap is an index mapping, keyed by field name.
type PropertyMap = map[string]types.Property

// Properties generates the index mapping of a document type.
//
// Strings are keyword fields unless declared text; keyword-declared strings
// also get a "keyword" sub-field, which terms aggregations group on.
// Dynamic documents have no mapping; Elasticsearch maps them on write.
func (r *Resolver) Properties(t reflect.Type) PropertyMap {
	return r.properties(indirect(t), map[reflect.Type]bool{})
}

func (r *Resolver) properties(t reflect.Type, seen map[reflect.Type]bool) PropertyMap {
	if t.Kind() != reflect.Struct || seen[t] {
		return nil
	}
	seen[t] = true
	defer delete(seen, t)

	props := make(PropertyMap)
	for _, fi := range r.typeInfo(t).fields {
		if p := r.property(fi, seen); p != nil {
			props[fi.name] = p
		}
	}
	return props
}

func (r *Resolver) property(fi fieldInfo, seen map[reflect.Type]bool) types.Property {
	ft := indirect(fi.typ)
	for ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array {
		if ft.Elem().Kind() == reflect.Uint8 {
			return types.NewBinaryProperty()
		}
		ft = indirect(ft.Elem())
	}

	switch fi.kind {
	case KindKeyword:
		p := types.NewKeywordProperty()
		if p.Fields == nil {
			p.Fields = make(map[string]types.Property)
		}
		p.Fields["keyword"] = types.NewKeywordProperty()
		return p
	case KindText:
		return types.NewTextProperty()
	case KindDate:
		return types.NewDateProperty()
	case KindNumber:
		if isInteger(ft) {
			return types.NewLongNumberProperty()
		}
		return types.NewDoubleNumberProperty()
	}

	switch ft.Kind() {
	case reflect.Bool:
		return types.NewBooleanProperty()
	case reflect.String:
		return types.NewKeywordProperty()
	case reflect.Struct:
		o := types.NewObjectProperty()
		o.Properties = r.properties(ft, seen)
		return o
	}
	return nil
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
