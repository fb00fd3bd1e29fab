package lua

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// ToGoValue converts a Lua value into a JSON-shaped Go value.
// Tables become []any when their keys are exactly 1..n, otherwise map[string]any.
// Functions and cyclic references convert to nil.
func ToGoValue(lv lua.LValue) any {
	return toGo(lv, make(map[*lua.LTable]bool))
}

func toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	if lv == nil {
		return nil
	}

	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.MaxN()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && count == n {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		if _, isFn := v.(*lua.LFunction); isFn {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = lua.LVAsString(kv)
		default:
			key = k.String()
		}
		m[key] = toGo(v, visited)
	})
	return m
}

// ToLuaValue converts a Go value (typically decoded JSON) into a Lua value
func ToLuaValue(L *lua.LState, v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}

	switch val := v.(type) {
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return lua.LString(val.String())
		}
		return lua.LNumber(f)
	case []any:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			t.RawSetInt(i+1, ToLuaValue(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(val))
		// sorted so table iteration order does not depend on map order
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, ToLuaValue(L, val[k]))
		}
		return t
	default:
		return reflectToLua(L, v)
	}
}

// reflectToLua handles named map, slice and struct types by way of their JSON form
func reflectToLua(L *lua.LState, v any) lua.LValue {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr:
		data, err := json.Marshal(v)
		if err != nil {
			return lua.LString(fmt.Sprint(v))
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return lua.LString(fmt.Sprint(v))
		}
		return ToLuaValue(L, generic)
	default:
		return lua.LString(fmt.Sprint(v))
	}
}
