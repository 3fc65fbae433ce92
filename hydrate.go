package thingsboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"
	"unicode"
)

// A field table is derived once per Go type from its struct tags:
//
//	Name string `json:"title" tb:"name"`
//	ID   Id     `json:"id" tb:"id,required"`
//	Type string `json:"type" tb:"type,default=DEFAULT"`
//
// The json tag carries the wire name. The tb tag carries the canonical
// snake_case name followed by options: required, readonly and default=<v>,
// where v is a JSON literal or, failing that, a bare string. Without a tb
// tag the canonical name is the snake_case form of the wire name.
// Anonymous embedded structs are flattened into the parent table.

type fieldInfo struct {
	index    []int
	wire     string
	name     string
	required bool
	readOnly bool
	def      json.RawMessage
}

type fieldTable struct {
	shape  string
	fields []*fieldInfo
	byWire map[string]*fieldInfo
	byName map[string]*fieldInfo
}

var fieldTables sync.Map // reflect.Type -> *fieldTable

func tableFor(t reflect.Type) *fieldTable {
	if cached, ok := fieldTables.Load(t); ok {
		return cached.(*fieldTable)
	}
	ft := &fieldTable{
		shape:  t.Name(),
		byWire: make(map[string]*fieldInfo),
		byName: make(map[string]*fieldInfo),
	}
	collectFields(ft, t, nil)
	actual, _ := fieldTables.LoadOrStore(t, ft)
	return actual.(*fieldTable)
}

func collectFields(ft *fieldTable, t reflect.Type, parent []int) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		if sf.Anonymous && sf.Type.Kind() == reflect.Struct && sf.Tag.Get("json") == "" {
			collectFields(ft, sf.Type, index)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		wire, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if wire == "-" {
			continue
		}
		if wire == "" {
			wire = sf.Name
		}

		fi := &fieldInfo{index: index, wire: wire, name: snakeCase(wire)}
		if tag, ok := sf.Tag.Lookup("tb"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				fi.name = parts[0]
			}
			for _, opt := range parts[1:] {
				switch {
				case opt == "required":
					fi.required = true
				case opt == "readonly":
					fi.readOnly = true
				case strings.HasPrefix(opt, "default="):
					fi.def = defaultLiteral(strings.TrimPrefix(opt, "default="))
				}
			}
		}

		// An outer declaration shadows an embedded one with the same wire name.
		if prev, ok := ft.byWire[wire]; ok {
			if len(prev.index) <= len(fi.index) {
				continue
			}
			ft.fields = slices.DeleteFunc(ft.fields, func(f *fieldInfo) bool { return f == prev })
			delete(ft.byName, prev.name)
		}
		ft.fields = append(ft.fields, fi)
		ft.byWire[wire] = fi
		ft.byName[fi.name] = fi
	}
}

func defaultLiteral(v string) json.RawMessage {
	if json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	b, _ := json.Marshal(v)
	return b
}

// snakeCase turns a camelCase wire name into its canonical form:
// "deviceProfileId" becomes "device_profile_id".
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lookup resolves a field by canonical name, then by wire name.
func (ft *fieldTable) lookup(name string) (*fieldInfo, bool) {
	if fi, ok := ft.byName[name]; ok {
		return fi, true
	}
	fi, ok := ft.byWire[name]
	return fi, ok
}

var nullLiteral = []byte("null")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), nullLiteral)
}

// unwrapEncoded returns the JSON inside a JSON string when data is a string
// literal holding serialized JSON, and data unchanged otherwise.
func unwrapEncoded(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return data
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return data
	}
	inner := bytes.TrimSpace([]byte(s))
	if json.Valid(inner) {
		return inner
	}
	return data
}

// hydrateInto fills the struct pointed to by dst from data using the
// struct's field table. Unknown keys are ignored. Missing, null or
// undecodable optional fields take their declared default. A missing or
// malformed required field fails the whole parse and leaves dst untouched.
func hydrateInto(data []byte, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return &HydrationError{Shape: reflect.TypeOf(dst).String(), Err: errors.New("destination must be a non-nil struct pointer")}
	}
	ft := tableFor(rv.Elem().Type())

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(unwrapEncoded(data), &raw); err != nil {
		return &HydrationError{Shape: ft.shape, Err: err}
	}

	// Decode into a scratch value so a fatal error leaves dst as it was.
	out := reflect.New(rv.Elem().Type()).Elem()
	out.Set(rv.Elem())
	for _, fi := range ft.fields {
		fv := out.FieldByIndex(fi.index)
		value, present := raw[fi.wire]
		if !present || isNull(value) {
			if fi.required {
				return &HydrationError{Shape: ft.shape, Field: fi.name, Err: ErrMissingIdentity}
			}
			applyDefault(fv, fi)
			continue
		}
		if err := json.Unmarshal(value, fv.Addr().Interface()); err != nil {
			if fi.required {
				if errors.Is(err, ErrMissingIdentity) {
					return &HydrationError{Shape: ft.shape, Field: fi.name, Err: err}
				}
				return &HydrationError{Shape: ft.shape, Field: fi.name, Err: errors.Join(ErrMissingIdentity, err)}
			}
			applyDefault(fv, fi)
		}
	}
	rv.Elem().Set(out)
	return nil
}

func applyDefault(fv reflect.Value, fi *fieldInfo) {
	fv.Set(reflect.Zero(fv.Type()))
	if fi.def != nil {
		// Defaults are validated JSON, a failure here leaves the zero value.
		_ = json.Unmarshal(fi.def, fv.Addr().Interface())
	}
}

// Hydrate parses a server response into a T using T's field table.
// It is the single entry point for turning loosely shaped JSON into entities.
func Hydrate[T any](data []byte) (*T, error) {
	v := new(T)
	if err := hydrateInto(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// wireMap encodes v and drops its read-only fields, producing the body for
// a save request.
func wireMap(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		for _, fi := range tableFor(t).fields {
			if fi.readOnly {
				delete(m, fi.wire)
			}
		}
	}
	return m, nil
}
