package skills

import (
	"context"
	"fmt"

	"github.com/harun/skillbridge/pkg/plugin"
)

func init() {
	plugin.RegisterBuiltin("echo", NewEcho)
}

// Echo replies with the message text of the event it is called with.
// Config: "prefix" (string) is prepended to every reply.
type Echo struct {
	plugin.Base
	prefix string
}

// NewEcho builds the echo skill
func NewEcho(config map[string]any) (plugin.Plugin, error) {
	e := &Echo{Base: plugin.NewBase("Echo")}
	if v, ok := config["prefix"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("echo: prefix must be a string, got %T", v)
		}
		e.prefix = s
	}

	e.Rules = []plugin.Rule{{
		Method:     "say",
		Event:      plugin.DefaultEvent,
		Log:        true,
		Permission: plugin.DefaultPermission,
	}}
	e.Handle("say", e.say)
	return e, nil
}

func (e *Echo) say(ctx context.Context, call plugin.Call) (any, error) {
	msg, _ := call.Event["msg"].(string)
	return e.prefix + msg, nil
}
