package thingsboard

import (
	"encoding/json"
	"testing"
)

func TestJSONObject_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantNil bool
		wantKey string
		wantErr bool
	}{
		{"object", `{"description":"x"}`, false, "description", false},
		{"serialized object", `"{\"description\":\"x\"}"`, false, "description", false},
		{"null", `null`, true, "", false},
		{"empty string", `""`, true, "", false},
		{"blank string", `"   "`, true, "", false},
		{"array", `[1,2]`, false, "", true},
		{"plain string", `"hello"`, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o JSONObject
			err := json.Unmarshal([]byte(tt.input), &o)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (o == nil) != tt.wantNil {
				t.Errorf("o = %v, wantNil %v", o, tt.wantNil)
			}
			if tt.wantKey != "" {
				if _, ok := o[tt.wantKey]; !ok {
					t.Errorf("key %q missing from %v", tt.wantKey, o)
				}
			}
		})
	}
}

func TestJSONObject_InEntityDegrades(t *testing.T) {
	// A malformed optional value must not fail the entity.
	input := `{"id":{"id":"` + testCustomerID + `"},"title":"Acme","additionalInfo":"not json at all"}`
	cu, err := Hydrate[Customer]([]byte(input))
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if cu.AdditionalInfo != nil {
		t.Errorf("AdditionalInfo = %v, want nil", cu.AdditionalInfo)
	}
}

func TestCollection_List(t *testing.T) {
	var c Collection[int]
	if err := json.Unmarshal([]byte(`[3,1,2]`), &c); err != nil {
		t.Fatal(err)
	}
	if c.Keyed() || c.Len() != 3 || c.At(0) != 3 {
		t.Errorf("collection = %+v", c)
	}
	if v, ok := c.Get("2"); !ok || v != 2 {
		t.Errorf("Get(2) = %v, %v", v, ok)
	}
	if _, ok := c.Get("7"); ok {
		t.Error("Get out of range should fail")
	}
	if c.Keys() != nil {
		t.Error("lists have no keys")
	}

	out, _ := json.Marshal(c)
	if string(out) != "[3,1,2]" {
		t.Errorf("marshal = %s", out)
	}
}

func TestCollection_Keyed(t *testing.T) {
	var c Collection[string]
	if err := json.Unmarshal([]byte(`{"z":"last","a":"first"}`), &c); err != nil {
		t.Fatal(err)
	}
	if !c.Keyed() || c.Len() != 2 {
		t.Fatalf("collection = %+v", c)
	}

	var keys []string
	for k, v := range c.All() {
		keys = append(keys, k+"="+v)
	}
	if len(keys) != 2 || keys[0] != "z=last" || keys[1] != "a=first" {
		t.Errorf("All() = %v", keys)
	}

	c.Set("a", "changed")
	c.Set("m", "new")
	out, _ := json.Marshal(c)
	if string(out) != `{"z":"last","a":"changed","m":"new"}` {
		t.Errorf("marshal = %s", out)
	}
}

func TestCollection_Constructors(t *testing.T) {
	list := NewList("a", "b")
	list.Append("c")
	if out, _ := json.Marshal(list); string(out) != `["a","b","c"]` {
		t.Errorf("list = %s", out)
	}

	keyed := NewKeyed[int]()
	if out, _ := json.Marshal(keyed); string(out) != `{}` {
		t.Errorf("empty keyed = %s", out)
	}
	if out, _ := json.Marshal(Collection[int]{}); string(out) != `[]` {
		t.Errorf("zero collection = %s", out)
	}
}

func TestCollection_Invalid(t *testing.T) {
	var c Collection[int]
	if err := json.Unmarshal([]byte(`"nope"`), &c); err == nil {
		t.Error("expected error for a string")
	}
	if err := json.Unmarshal([]byte(`{"a":"not an int"}`), &c); err == nil {
		t.Error("expected error for a bad member")
	}
	if err := json.Unmarshal([]byte(`null`), &c); err != nil || c.Len() != 0 {
		t.Errorf("null: %v, len %d", err, c.Len())
	}
}

func TestCollection_MixedMutation(t *testing.T) {
	t.Run("set on list", func(t *testing.T) {
		c := NewList("a", "b")
		c.Set("k", "c")

		if !c.Keyed() || c.Len() != 3 {
			t.Fatalf("Keyed = %v, Len = %d, want true, 3", c.Keyed(), c.Len())
		}
		got := map[string]string{}
		for k, v := range c.All() {
			got[k] = v
		}
		want := map[string]string{"0": "a", "1": "b", "k": "c"}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("All()[%q] = %q, want %q", k, got[k], v)
			}
		}
		data, err := json.Marshal(c)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `{"0":"a","1":"b","k":"c"}` {
			t.Errorf("Marshal = %s", data)
		}
	})

	t.Run("append on keyed", func(t *testing.T) {
		c := NewKeyed[string]()
		c.Set("k", "v")
		c.Set("1", "taken")
		c.Append("w")

		if c.Len() != 3 {
			t.Fatalf("Len = %d, want 3", c.Len())
		}
		if v, ok := c.Get("2"); !ok || v != "w" {
			t.Errorf("Get(2) = %q, %v, want w", v, ok)
		}
		n := 0
		for range c.All() {
			n++
		}
		if n != 3 {
			t.Errorf("All yielded %d members, want 3", n)
		}

		data, err := json.Marshal(c)
		if err != nil {
			t.Fatal(err)
		}
		var back Collection[string]
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back.Len() != 3 || !back.Keyed() {
			t.Errorf("round trip = %s, Len %d", data, back.Len())
		}
		if v, _ := back.Get("k"); v != "v" {
			t.Errorf("round trip k = %q, want v", v)
		}
	})
}
