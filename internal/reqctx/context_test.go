package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RID(ctx))
	assert.Empty(t, UID(ctx))

	ctx = WithUID(WithRID(ctx, "rid-1"), "emp-1")
	assert.Equal(t, "rid-1", RID(ctx))
	assert.Equal(t, "emp-1", UID(ctx))
	assert.NotNil(t, Logger(ctx))
}
