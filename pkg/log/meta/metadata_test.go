package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeginIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := Begin(context.Background())
	assert.Equal(t, ctx, Begin(ctx))

	WithValue(ctx, "guild", "7")
	child, cancel := context.WithCancel(ctx)
	defer cancel()
	assert.Equal(t, "7", Value(child, "guild"), "values are visible to derived contexts")
}

func TestValueWithoutBegin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	WithValue(ctx, "guild", "7")
	assert.Nil(t, Value(ctx, "guild"))
}
