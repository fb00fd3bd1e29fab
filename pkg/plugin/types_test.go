package plugin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptResult(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    AcceptResult
		wantErr bool
	}{
		{"nil", nil, AcceptContinue, false},
		{"false", false, AcceptContinue, false},
		{"true", true, AcceptHandled, false},
		{"empty string", "", AcceptContinue, false},
		{"continue", "continue", AcceptContinue, false},
		{"exclusive mixed case", "Exclusive", AcceptExclusive, false},
		{"handled", "handled", AcceptHandled, false},
		{"typed", AcceptExclusive, AcceptExclusive, false},
		{"unknown string", "maybe", "", true},
		{"number", 3, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAcceptResult(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRule_Defaults(t *testing.T) {
	var rules []Rule
	require.NoError(t, json.Unmarshal([]byte(`[
		{"fnc": "say"},
		{"fnc": "ban", "reg": "^/ban", "event": "notice", "log": false, "permission": "admin"}
	]`), &rules))

	require.Len(t, rules, 2)
	assert.Equal(t, Rule{Method: "say", Event: DefaultEvent, Log: true, Permission: DefaultPermission}, rules[0])

	require.NotNil(t, rules[1].Pattern)
	assert.Equal(t, "^/ban", *rules[1].Pattern)
	assert.Equal(t, "notice", rules[1].Event)
	assert.False(t, rules[1].Log)
	assert.Equal(t, "admin", rules[1].Permission)
}

func TestScheduledTask_Defaults(t *testing.T) {
	var task ScheduledTask
	require.NoError(t, json.Unmarshal([]byte(`{"cron": "0 * * * *", "fnc": "tick"}`), &task))
	assert.Equal(t, ScheduledTask{Cron: "0 * * * *", Method: "tick", Log: true}, task)
}

func TestDescriptor_WireForm(t *testing.T) {
	data, err := json.Marshal(Descriptor{Key: "a/index", Name: "A", Priority: 5}.Normalize())
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"a/index","name":"A","priority":5,"bypassThrottle":false,"rule":[],"task":[]}`, string(data))
}

func TestNewCall(t *testing.T) {
	t.Run("event from first object argument", func(t *testing.T) {
		args := []any{map[string]any{"msg": "hi"}, 1.0}
		call := NewCall("k", "m", args)
		assert.Equal(t, Event{"msg": "hi"}, call.Event)
		assert.Equal(t, args, call.Args)
	})

	t.Run("no event when first argument is not an object", func(t *testing.T) {
		call := NewCall("k", "m", []any{"text"})
		assert.Nil(t, call.Event)
	})

	t.Run("no arguments", func(t *testing.T) {
		call := NewCall("k", "m", nil)
		assert.Nil(t, call.Event)
		assert.Empty(t, call.Args)
	})
}

func TestBase(t *testing.T) {
	ctx := context.Background()
	b := NewBase("Plain")
	b.Handle("hello", func(ctx context.Context, call Call) (any, error) {
		return "hello " + call.Event["who"].(string), nil
	})

	assert.True(t, b.HasMethod("hello"))
	assert.True(t, b.HasMethod(MethodAccept))
	assert.True(t, b.HasMethod(MethodUnmatched))
	assert.False(t, b.HasMethod("other"))

	v, err := b.Invoke(ctx, NewCall("k", "hello", []any{map[string]any{"who": "you"}}))
	require.NoError(t, err)
	assert.Equal(t, "hello you", v)

	v, err = b.Invoke(ctx, NewCall("k", MethodAccept, nil))
	require.NoError(t, err)
	assert.Equal(t, string(AcceptContinue), v)

	v, err = b.Invoke(ctx, NewCall("k", MethodUnmatched, nil))
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = b.Invoke(ctx, NewCall("k", "other", nil))
	assert.ErrorIs(t, err, ErrUnknownMethod)

	desc := b.Descriptor()
	assert.Equal(t, "Plain", desc.Name)
	assert.Equal(t, DefaultPriority, desc.Priority)
}
