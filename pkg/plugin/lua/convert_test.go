package lua

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"
)

func TestToGoValue(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	eval := func(src string) lua.LValue {
		t.Helper()
		if err := L.DoString("v = " + src); err != nil {
			t.Fatalf("DoString(%q): %v", src, err)
		}
		return L.GetGlobal("v")
	}

	tests := []struct {
		name string
		src  string
		want any
	}{
		{"nil", `nil`, nil},
		{"integer", `42`, int64(42)},
		{"float", `1.5`, 1.5},
		{"string", `"hi"`, "hi"},
		{"bool", `true`, true},
		{"array", `{1, "a", false}`, []any{int64(1), "a", false}},
		{"map", `{a = 1, b = {c = "d"}}`, map[string]any{"a": int64(1), "b": map[string]any{"c": "d"}}},
		{"empty table", `{}`, map[string]any{}},
		{"functions dropped", `{a = 1, f = function() end}`, map[string]any{"a": int64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToGoValue(eval(tt.src)))
		})
	}
}

func TestToGoValue_Cycle(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(`v = {name = "x"}; v.self = v`); err != nil {
		t.Fatal(err)
	}
	got := ToGoValue(L.GetGlobal("v"))
	assert.Equal(t, map[string]any{"name": "x", "self": nil}, got)
}

func TestToLuaValue_Named(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	type level int
	type payload struct {
		Text string `json:"text"`
	}

	assert.Equal(t, lua.LNumber(3), ToLuaValue(L, level(3)))
	assert.Equal(t, lua.LNumber(2.5), ToLuaValue(L, json.Number("2.5")))

	tbl, ok := ToLuaValue(L, payload{Text: "x"}).(*lua.LTable)
	if assert.True(t, ok) {
		assert.Equal(t, lua.LString("x"), tbl.RawGetString("text"))
	}
}

// JSON-shaped values survive a trip through Lua unchanged
func TestConvert_RoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	scalar := rapid.OneOf(
		rapid.Map(rapid.Int64Range(-1<<40, 1<<40), func(v int64) any { return v }),
		rapid.Map(rapid.String(), func(v string) any { return v }),
		rapid.Map(rapid.Bool(), func(v bool) any { return v }),
	)
	list := rapid.Map(rapid.SliceOfN(scalar, 1, 5), func(v []any) any { return v })
	object := rapid.Map(rapid.MapOfN(rapid.StringMatching(`[a-z]{1,8}`), scalar, 1, 5), func(v map[string]any) any { return v })
	value := rapid.OneOf(scalar, list, object)

	rapid.Check(t, func(t *rapid.T) {
		v := value.Draw(t, "value")
		got := ToGoValue(ToLuaValue(L, v))
		if !assert.ObjectsAreEqual(v, got) {
			t.Fatalf("round trip changed value: %#v -> %#v", v, got)
		}
	})
}
