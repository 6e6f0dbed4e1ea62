package ctxmeta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropagate(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	parent = WithTraceID(parent, "t-1")
	parent = WithSessionID(parent, "s-1")
	parent = WithCallID(parent, "c-1")
	cancel()

	ctx := Propagate(parent)
	assert.NoError(t, ctx.Err(), "propagated ctx must not inherit cancellation")
	assert.Equal(t, "t-1", TraceID(ctx))
	assert.Equal(t, "s-1", SessionID(ctx))
	assert.Equal(t, "c-1", CallID(ctx))
	assert.Empty(t, DeviceID(ctx))
}

func TestTraceIDStringKey(t *testing.T) {
	//nolint:staticcheck // gin.Context 使用字符串 key
	ctx := context.WithValue(context.Background(), GinTraceKey, "from-gin")
	assert.Equal(t, "from-gin", TraceID(ctx))
}
