package mapping

import (
	"reflect"
	"sync"
	"time"

	"github.com/reveald/esq"
)

const (
	// DefaultSuffixFormat is the time layout of period index suffixes (year_month).
	DefaultSuffixFormat = "2006_01"
	defaultShards       = 3
	defaultRefresh      = "1s"
)

// Index declares where the documents of a type live.
type Index struct {
	// Name is the base index name. Reads always target it; it is also an
	// alias of every period index.
	Name string
	// SuffixFormat is the time layout appended to Name for period indices.
	SuffixFormat string
	Aliases      []string
	Replicas     int
	Shards       int
}

// Indexed is implemented by document types that declare their index.
//
//	func (Sale) SearchIndex() mapping.Index {
//	    return mapping.Index{Name: "sales"}
//	}
type Indexed interface {
	SearchIndex() Index
}

var registry sync.Map

// RegisterIndex declares the index of a document type that cannot
// implement Indexed, such as a type from another package.
func RegisterIndex[T any](ix Index) {
	registry.Store(reflect.TypeFor[T](), ix)
}

// IndexOf returns the normalized index declaration of T.
func IndexOf[T any]() (Index, error) {
	t := reflect.TypeFor[T]()

	// A non-nil pointer to the element type carries both value and
	// pointer receiver methods.
	if base := indirect(t); base.Kind() != reflect.Interface {
		if ixd, ok := reflect.New(base).Interface().(Indexed); ok {
			return ixd.SearchIndex().normalize(t)
		}
	}
	if ix, ok := registry.Load(t); ok {
		return ix.(Index).normalize(t)
	}
	return Index{}, esq.MissingMetadata(t.String())
}

// Normalize applies the defaults of a declaration: aliases [Name],
// 3 shards, year_month suffix format.
func (ix Index) Normalize() (Index, error) {
	return ix.normalize(nil)
}

func (ix Index) normalize(t reflect.Type) (Index, error) {
	if ix.Name == "" {
		name := "index declaration"
		if t != nil {
			name = t.String()
		}
		return Index{}, esq.MissingMetadata(name)
	}
	if ix.SuffixFormat == "" {
		ix.SuffixFormat = DefaultSuffixFormat
	}
	if len(ix.Aliases) == 0 {
		ix.Aliases = []string{ix.Name}
	}
	if ix.Shards <= 0 {
		ix.Shards = defaultShards
	}
	if ix.Replicas < 0 {
		ix.Replicas = 0
	}
	return ix, nil
}

// NameAt returns the period index holding documents written at t.
func (ix Index) NameAt(t time.Time) string {
	layout := ix.SuffixFormat
	if layout == "" {
		layout = DefaultSuffixFormat
	}
	return ix.Name + "_" + t.Format(layout)
}

// Settings returns the creation settings of the index with a mapping
// generated from the document type.
//
// The base name cannot be an alias of itself, so it is left out of the
// aliases of an index that is created under that same name.
func (ix Index) Settings(target string, properties PropertyMap) esq.IndexSettings {
	var aliases []string
	for _, a := range ix.Aliases {
		if a != target {
			aliases = append(aliases, a)
		}
	}
	return esq.IndexSettings{
		Aliases:         aliases,
		Replicas:        ix.Replicas,
		Shards:          ix.Shards,
		RefreshInterval: defaultRefresh,
		Properties:      properties,
	}
}
