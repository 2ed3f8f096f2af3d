package appctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/batchq/pkg/config"
)

func TestWithConfig(t *testing.T) {
	t.Run("stores config manager in context", func(t *testing.T) {
		manager := config.NewManager()
		ctx := WithConfig(context.Background(), manager)

		retrieved, ok := Config(ctx)
		require.True(t, ok)
		assert.Same(t, manager, retrieved)
	})

	t.Run("handles nil context", func(t *testing.T) {
		manager := config.NewManager()
		//nolint:staticcheck
		ctx := WithConfig(nil, manager)

		retrieved, ok := Config(ctx)
		require.True(t, ok)
		assert.Same(t, manager, retrieved)
	})
}

func TestConfig(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, ok := Config(context.Background())
		assert.False(t, ok)
	})

	t.Run("nil manager", func(t *testing.T) {
		ctx := WithConfig(context.Background(), nil)
		_, ok := Config(ctx)
		assert.False(t, ok)
	})

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck
		_, ok := Config(nil)
		assert.False(t, ok)
	})
}
