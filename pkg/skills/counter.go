package skills

import (
	"context"
	"fmt"

	"github.com/harun/skillbridge/pkg/plugin"
)

func init() {
	plugin.RegisterBuiltin("counter", NewCounter)
}

// Counter keeps a running total across calls on the same instance.
// Config: "start" and "step" (numbers), "schedule" (cron expression for a reset task).
type Counter struct {
	plugin.Base
	count int64
	start int64
	step  int64
}

// NewCounter builds the counter skill
func NewCounter(config map[string]any) (plugin.Plugin, error) {
	c := &Counter{Base: plugin.NewBase("Counter"), step: 1}

	var err error
	if c.start, err = intOption(config, "start", 0); err != nil {
		return nil, err
	}
	if c.step, err = intOption(config, "step", 1); err != nil {
		return nil, err
	}
	c.count = c.start

	c.Rules = []plugin.Rule{{
		Method:     "increment",
		Event:      plugin.DefaultEvent,
		Log:        false,
		Permission: plugin.DefaultPermission,
	}}
	if schedule, ok := config["schedule"].(string); ok {
		c.Tasks = []plugin.ScheduledTask{{Cron: schedule, Method: "reset", Name: "counter reset", Log: true}}
	}

	c.Handle("increment", c.increment)
	c.Handle("value", c.value)
	c.Handle("reset", c.reset)
	return c, nil
}

func (c *Counter) increment(ctx context.Context, call plugin.Call) (any, error) {
	c.count += c.step
	return c.count, nil
}

func (c *Counter) value(ctx context.Context, call plugin.Call) (any, error) {
	return c.count, nil
}

func (c *Counter) reset(ctx context.Context, call plugin.Call) (any, error) {
	c.count = c.start
	return c.count, nil
}

func intOption(config map[string]any, name string, def int64) (int64, error) {
	v, ok := config[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("counter: %s must be an integer, got %v", name, n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("counter: %s must be a number, got %T", name, v)
	}
}
