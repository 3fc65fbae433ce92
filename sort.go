package thingsboard

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// SortOrder is the direction of one sort key.
type SortOrder int

// Sort directions.
const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// SortKey is one field of a composite sort.
type SortKey struct {
	Field string
	Order SortOrder
}

// Asc returns an ascending key on field.
func Asc(field string) SortKey { return SortKey{Field: field, Order: Ascending} }

// Desc returns a descending key on field.
func Desc(field string) SortKey { return SortKey{Field: field, Order: Descending} }

func (k SortKey) String() string {
	return k.Field + " " + k.Order.String()
}

// ParseSortKey parses "name", "name asc", "name DESC", "name descending" and
// similar. Direction words are case-insensitive and surrounding whitespace is
// ignored.
func ParseSortKey(s string) (SortKey, error) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return Asc(parts[0]), nil
	case 2:
		switch strings.ToLower(parts[1]) {
		case "asc", "ascending":
			return Asc(parts[0]), nil
		case "desc", "descending":
			return Desc(parts[0]), nil
		}
		return SortKey{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidSortSpec, parts[1])
	}
	return SortKey{}, fmt.Errorf("%w: %q", ErrInvalidSortSpec, s)
}

// NormalizeSortSpec turns any accepted sort specification into an ordered
// key list. Accepted forms: a string ("name desc"), a SortKey, []string,
// []SortKey, or []any mixing strings and SortKeys. nil means no sorting.
func NormalizeSortSpec(spec any) ([]SortKey, error) {
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case string:
		k, err := ParseSortKey(s)
		if err != nil {
			return nil, err
		}
		return []SortKey{k}, nil
	case SortKey:
		if s.Field == "" {
			return nil, fmt.Errorf("%w: empty field", ErrInvalidSortSpec)
		}
		return []SortKey{s}, nil
	case []SortKey:
		out := make([]SortKey, 0, len(s))
		for _, k := range s {
			ks, err := NormalizeSortSpec(k)
			if err != nil {
				return nil, err
			}
			out = append(out, ks...)
		}
		return out, nil
	case []string:
		out := make([]SortKey, 0, len(s))
		for _, str := range s {
			k, err := ParseSortKey(str)
			if err != nil {
				return nil, err
			}
			out = append(out, k)
		}
		return out, nil
	case []any:
		out := make([]SortKey, 0, len(s))
		for _, item := range s {
			switch item.(type) {
			case string, SortKey:
			default:
				return nil, fmt.Errorf("%w: unsupported element %T", ErrInvalidSortSpec, item)
			}
			ks, err := NormalizeSortSpec(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ks...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidSortSpec, spec)
}

// Sort orders records in place by spec (see NormalizeSortSpec). The sort is
// stable and uses one composite comparator over all keys.
//
// Records may be entity structs or pointers to them (fields are named by
// their canonical snake_case names, e.g. "tenant_id"), map[string]any keyed
// by field, or []any tuples addressed by index ("0", "1", ...).
//
// Nulls sort last in both directions. true sorts before false when
// ascending. Ids order by their GUID string and timestamps chronologically.
// A field that no record has is reported as an UnknownSortKeyError.
func Sort[T any](records []T, spec any) error {
	keys, err := NormalizeSortSpec(spec)
	if err != nil {
		return err
	}
	if len(keys) == 0 || len(records) == 0 {
		return nil
	}

	type row struct {
		rec  T
		vals []sortValue
	}
	rows := make([]row, len(records))
	seen := make([]bool, len(keys))
	for i, rec := range records {
		rows[i] = row{rec: rec, vals: make([]sortValue, len(keys))}
		for k, key := range keys {
			v, found, err := sortField(rec, key.Field)
			if err != nil {
				return err
			}
			seen[k] = seen[k] || found
			rows[i].vals[k] = v
		}
	}
	for k, ok := range seen {
		if !ok {
			return &UnknownSortKeyError{Field: keys[k].Field, Shape: shapeName(records[0])}
		}
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		for k, key := range keys {
			if c := compareSortValues(a.vals[k], b.vals[k], key.Order); c != 0 {
				return c
			}
		}
		return 0
	})
	for i := range rows {
		records[i] = rows[i].rec
	}
	return nil
}

// Sorted returns a sorted copy of records, leaving the input untouched.
func Sorted[T any](records []T, spec any) ([]T, error) {
	out := slices.Clone(records)
	if err := Sort(out, spec); err != nil {
		return nil, err
	}
	return out, nil
}

func shapeName(rec any) string {
	t := reflect.TypeOf(rec)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

type sortKind int

const (
	kindNull sortKind = iota
	kindBool
	kindNumber
	kindTime
	kindString
)

type sortValue struct {
	kind sortKind
	b    bool
	n    float64
	t    time.Time
	s    string
}

// sortField extracts field from rec. found is false when the record simply
// lacks the field (a map without the key); an error means the record's
// shape can never have it.
func sortField(rec any, field string) (sortValue, bool, error) {
	rv := reflect.ValueOf(rec)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return sortValue{}, false, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		fi, ok := tableFor(rv.Type()).lookup(field)
		if !ok {
			return sortValue{}, false, &UnknownSortKeyError{Field: field, Shape: rv.Type().Name()}
		}
		v := normalizeSortValue(rv.FieldByIndex(fi.index))
		// Hydration leaves absent strings empty; treat them as missing.
		if v.kind == kindString && v.s == "" {
			v = sortValue{}
		}
		return v, true, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		mv := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return sortValue{}, false, nil
		}
		return normalizeSortValue(mv), true, nil
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(field)
		if err != nil {
			return sortValue{}, false, &UnknownSortKeyError{Field: field, Shape: "tuple"}
		}
		if i < 0 || i >= rv.Len() {
			return sortValue{}, false, nil
		}
		return normalizeSortValue(rv.Index(i)), true, nil
	}
	return sortValue{}, false, &UnknownSortKeyError{Field: field, Shape: rv.Type().String()}
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	timestampType = reflect.TypeOf(Timestamp{})
	idLikeType    = reflect.TypeOf((*IDLike)(nil)).Elem()
)

func normalizeSortValue(v reflect.Value) sortValue {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return sortValue{}
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return sortValue{}
	}

	switch {
	case v.Type() == timeType, v.Type() == timestampType:
		var t time.Time
		if ts, ok := v.Interface().(Timestamp); ok {
			t = ts.Time
		} else {
			t = v.Interface().(time.Time)
		}
		// An unset time is absent, not the earliest instant.
		if t.IsZero() {
			return sortValue{}
		}
		return sortValue{kind: kindTime, t: t}
	case v.Type().Implements(idLikeType):
		return sortValue{kind: kindString, s: v.Interface().(IDLike).GUID()}
	}

	switch v.Kind() {
	case reflect.Bool:
		return sortValue{kind: kindBool, b: v.Bool()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return sortValue{kind: kindNumber, n: float64(v.Int())}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return sortValue{kind: kindNumber, n: float64(v.Uint())}
	case reflect.Float32, reflect.Float64:
		return sortValue{kind: kindNumber, n: v.Float()}
	case reflect.String:
		if n, ok := v.Interface().(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				return sortValue{kind: kindNumber, n: f}
			}
		}
		return sortValue{kind: kindString, s: v.String()}
	case reflect.Map:
		// Id-shaped maps ({"id": ..., "entityType": ...}) order by GUID.
		if v.Type().Key().Kind() == reflect.String {
			if idv := v.MapIndex(reflect.ValueOf("id")); idv.IsValid() {
				if s, ok := idv.Interface().(string); ok {
					return sortValue{kind: kindString, s: s}
				}
			}
		}
	}
	return sortValue{kind: kindString, s: fmt.Sprint(v.Interface())}
}

// compareSortValues orders a before b. Nulls go last whatever the order.
func compareSortValues(a, b sortValue, order SortOrder) int {
	switch {
	case a.kind == kindNull && b.kind == kindNull:
		return 0
	case a.kind == kindNull:
		return 1
	case b.kind == kindNull:
		return -1
	}

	var c int
	if a.kind != b.kind {
		c = cmp.Compare(a.kind, b.kind)
	} else {
		switch a.kind {
		case kindBool:
			switch {
			case a.b == b.b:
				c = 0
			case a.b:
				c = -1
			default:
				c = 1
			}
		case kindNumber:
			c = cmp.Compare(a.n, b.n)
		case kindTime:
			c = a.t.Compare(b.t)
		case kindString:
			c = strings.Compare(a.s, b.s)
		}
	}
	if order == Descending {
		c = -c
	}
	return c
}
