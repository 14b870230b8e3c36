package integration

import (
	"sync"

	"github.com/pkg/errors"
)

// TestContext carries values between the ordered steps of one integration flow.
type TestContext struct {
	flow   string
	mu     sync.RWMutex
	values map[string]any
}

func NewTestContext(flow string) *TestContext {
	return &TestContext{
		flow:   flow,
		values: make(map[string]any),
	}
}

func SetValue(ctx *TestContext, key string, value any) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.values[key] = value
}

func GetValue(ctx *TestContext, key string) (any, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	value, ok := ctx.values[key]
	if !ok {
		return nil, errors.Errorf("%s: value not found for key %s", ctx.flow, key)
	}
	return value, nil
}

// GetString is GetValue for values stored as strings.
func GetString(ctx *TestContext, key string) (string, error) {
	value, err := GetValue(ctx, key)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", errors.Errorf("%s: value of key %s is not a string", ctx.flow, key)
	}
	return s, nil
}
