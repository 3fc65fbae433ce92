package thingsboard

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		in      string
		want    SortKey
		wantErr bool
	}{
		{"name", Asc("name"), false},
		{"name asc", Asc("name"), false},
		{"name DESC", Desc("name"), false},
		{"  name   Descending ", Desc("name"), false},
		{"name ascending", Asc("name"), false},
		{"name sideways", SortKey{}, true},
		{"", SortKey{}, true},
		{"a b c", SortKey{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSortKey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSortSpec) {
				t.Errorf("error = %v, want ErrInvalidSortSpec", err)
			}
			if got != tt.want {
				t.Errorf("ParseSortKey(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeSortSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    any
		want    []SortKey
		wantErr bool
	}{
		{"nil", nil, nil, false},
		{"string", "phone desc", []SortKey{Desc("phone")}, false},
		{"SortKey", Asc("email"), []SortKey{Asc("email")}, false},
		{"[]string", []string{"phone", "email desc"}, []SortKey{Asc("phone"), Desc("email")}, false},
		{"[]SortKey", []SortKey{Desc("a"), Asc("b")}, []SortKey{Desc("a"), Asc("b")}, false},
		{"mixed", []any{"a desc", Asc("b")}, []SortKey{Desc("a"), Asc("b")}, false},
		{"empty list", []string{}, []SortKey{}, false},
		{"empty SortKey", SortKey{}, nil, true},
		{"bad element", []any{"a", 3}, nil, true},
		{"unsupported", 42, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSortSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeSortSpec(%v) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func strp(s string) *string { return &s }

func TestSort_NullsLast(t *testing.T) {
	rows := func() []map[string]any {
		return []map[string]any{
			{"id": 1, "phone": nil},
			{"id": 2, "phone": "555-0002"},
			{"id": 3},
			{"id": 4, "phone": "555-0001"},
		}
	}

	tests := []struct {
		spec string
		want []int
	}{
		{"phone", []int{4, 2, 1, 3}},
		{"phone desc", []int{2, 4, 1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got := rows()
			if err := Sort(got, tt.spec); err != nil {
				t.Fatal(err)
			}
			for i, id := range tt.want {
				if got[i]["id"] != id {
					t.Errorf("order = %v, want ids %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestSort_Booleans(t *testing.T) {
	rows := []map[string]any{{"b": false}, {"b": true}, {"b": true}}
	if err := Sort(rows, "b"); err != nil {
		t.Fatal(err)
	}
	for i, want := range []bool{true, true, false} {
		if rows[i]["b"] != want {
			t.Fatalf("ascending = %v, want [true true false]", rows)
		}
	}

	if err := Sort(rows, "b desc"); err != nil {
		t.Fatal(err)
	}
	if rows[0]["b"] != false {
		t.Errorf("descending = %v, want false first", rows)
	}
}

func TestSort_MultiKey(t *testing.T) {
	type contact struct {
		Phone *string `json:"phone"`
		Email string  `json:"email"`
	}
	records := []contact{
		{Phone: strp("555-0002"), Email: "a@example.com"},
		{Phone: nil, Email: "z@example.com"},
		{Phone: strp("555-0001"), Email: "b@example.com"},
		{Phone: strp("555-0001"), Email: "c@example.com"},
		{Phone: nil, Email: "y@example.com"},
	}

	if err := Sort(records, []string{"phone asc", "email desc"}); err != nil {
		t.Fatal(err)
	}
	want := []string{"c@example.com", "b@example.com", "a@example.com", "z@example.com", "y@example.com"}
	for i, w := range want {
		if records[i].Email != w {
			got := make([]string, len(records))
			for j, r := range records {
				got[j] = r.Email
			}
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSort_Entities(t *testing.T) {
	mk := func(id, name string, created int64, active *bool) *Device {
		ts := TimestampFromMillis(created)
		d := &Device{Name: name, Active: active}
		d.ID = Id{ID: id, EntityType: EntityTypeDevice}
		d.CreatedTime = &ts
		return d
	}
	yes, no := true, false
	devices := []*Device{
		mk(testDevice2ID, "b-sensor", 3000, &no),
		mk(testDeviceID, "a-sensor", 1000, nil),
		mk(testCustomerID, "", 2000, &yes),
	}

	t.Run("canonical name through embedded base", func(t *testing.T) {
		got, err := Sorted(devices, "created_time desc")
		if err != nil {
			t.Fatal(err)
		}
		if got[0].Name != "b-sensor" || got[2].Name != "a-sensor" {
			t.Errorf("order = %v", got)
		}
		if devices[0].Name != "b-sensor" {
			t.Error("Sorted must not modify its input")
		}
	})

	t.Run("empty string is null", func(t *testing.T) {
		got, _ := Sorted(devices, "name desc")
		if got[2].Name != "" {
			t.Errorf("order = %v, want the nameless device last", got)
		}
	})

	t.Run("ids by guid", func(t *testing.T) {
		got, _ := Sorted(devices, "id")
		// 0b3c..., 784f..., 9a0a...
		if got[0].ID.ID != testDevice2ID || got[2].ID.ID != testDeviceID {
			t.Errorf("order = %v", got)
		}
	})

	t.Run("nil pointer bool last", func(t *testing.T) {
		got, _ := Sorted(devices, "active")
		if *got[0].Active != true || got[2].Active != nil {
			t.Errorf("order = %v", got)
		}
	})

	t.Run("wire name works too", func(t *testing.T) {
		if _, err := Sorted(devices, "createdTime"); err != nil {
			t.Error(err)
		}
	})
}

func TestSort_Tuples(t *testing.T) {
	rows := [][]any{
		{"b", 2},
		{"a", nil},
		{"c", 1},
	}
	if err := Sort(rows, "1"); err != nil {
		t.Fatal(err)
	}
	if rows[0][0] != "c" || rows[2][0] != "a" {
		t.Errorf("order = %v", rows)
	}
	if err := Sort(rows, "name"); !errors.Is(err, ErrUnknownSortKey) {
		t.Errorf("non-index field on tuples: error = %v", err)
	}
}

func TestSort_MixedValues(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []map[string]any{
		{"v": t0.Add(time.Hour)},
		{"v": map[string]any{"id": testDeviceID, "entityType": "DEVICE"}},
		{"v": t0},
		{"v": map[string]any{"id": testDevice2ID, "entityType": "DEVICE"}},
	}
	if err := Sort(rows, "v"); err != nil {
		t.Fatal(err)
	}
	// Times sort before strings; id-shaped maps compare as guids.
	if rows[0]["v"] != t0 {
		t.Errorf("first = %v, want earliest time", rows[0]["v"])
	}
	if m, _ := rows[2]["v"].(map[string]any); m["id"] != testDevice2ID {
		t.Errorf("third = %v", rows[2]["v"])
	}
}

func TestSort_UnknownKey(t *testing.T) {
	devices := []*Device{{Name: "x"}}
	err := Sort(devices, "colour")
	var uErr *UnknownSortKeyError
	if !errors.As(err, &uErr) {
		t.Fatalf("error = %v, want *UnknownSortKeyError", err)
	}
	if uErr.Field != "colour" || uErr.Shape != "Device" {
		t.Errorf("error = %+v", uErr)
	}
	if !errors.Is(err, ErrUnknownSortKey) {
		t.Error("should match ErrUnknownSortKey")
	}

	rows := []map[string]any{{"a": 1}, {"a": 2}}
	if err := Sort(rows, "b"); !errors.Is(err, ErrUnknownSortKey) {
		t.Errorf("maps: error = %v, want ErrUnknownSortKey", err)
	}
}

func TestSort_Stable(t *testing.T) {
	rows := []map[string]any{
		{"k": 1, "seq": 0}, {"k": 0, "seq": 1}, {"k": 1, "seq": 2}, {"k": 0, "seq": 3},
	}
	if err := Sort(rows, "k"); err != nil {
		t.Fatal(err)
	}
	want := []int{1, 3, 0, 2}
	for i, seq := range want {
		if rows[i]["seq"] != seq {
			t.Fatalf("order = %v, want seqs %v", rows, want)
		}
	}
}

func TestSort_Empty(t *testing.T) {
	if err := Sort([]*Device{}, "colour"); err != nil {
		t.Errorf("empty input: %v", err)
	}
	rows := []map[string]any{{"a": 2}, {"a": 1}}
	if err := Sort(rows, nil); err != nil || rows[0]["a"] != 2 {
		t.Errorf("nil spec should leave order alone: %v %v", rows, err)
	}
}

func TestSort_ZeroTimeIsNull(t *testing.T) {
	for _, order := range []SortKey{Asc("last_update_ts"), Desc("last_update_ts")} {
		t.Run(order.String(), func(t *testing.T) {
			attrs := []Attribute{
				{Key: "absent"},
				{Key: "early", LastUpdated: TimestampFromMillis(1000)},
				{Key: "late", LastUpdated: TimestampFromMillis(2000)},
			}
			if err := Sort(attrs, order); err != nil {
				t.Fatal(err)
			}
			if attrs[2].Key != "absent" {
				t.Errorf("last = %q, want absent", attrs[2].Key)
			}
		})
	}

	rows := []map[string]any{{"at": time.Time{}}, {"at": time.Unix(10, 0)}}
	if err := Sort(rows, "at"); err != nil {
		t.Fatal(err)
	}
	if !rows[1]["at"].(time.Time).IsZero() {
		t.Errorf("zero time.Time sorted before %v", rows[0]["at"])
	}
}
