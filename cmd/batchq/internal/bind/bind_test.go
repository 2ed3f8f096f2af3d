package bind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/batchq/pkg/config"
	"github.com/vulntor/batchq/pkg/processor/gemini"
	"github.com/vulntor/batchq/pkg/processor/simulate"
	srv "github.com/vulntor/batchq/pkg/server"
)

func TestBindRunOptions(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		flags    map[string]string
		expected RunOptions
		wantErr  bool
	}{
		{
			name:     "file only",
			args:     []string{"items.yaml"},
			expected: RunOptions{ItemsPath: "items.yaml"},
		},
		{
			name:     "stdin with progress and watch",
			args:     []string{"-"},
			flags:    map[string]string{"progress": "true", "watch": "true"},
			expected: RunOptions{ItemsPath: "-", Progress: true, Watch: true},
		},
		{
			name:    "no file",
			args:    nil,
			wantErr: true,
		},
		{
			name:    "empty file name",
			args:    []string{""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "run"}
			cmd.Flags().Bool("progress", false, "")
			cmd.Flags().Bool("watch", false, "")
			for k, v := range tt.flags {
				require.NoError(t, cmd.Flags().Set(k, v))
			}

			opts, err := BindRunOptions(cmd, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, opts)
		})
	}
}

func TestBindServerConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ShutdownTimeout = 0

	sc, err := BindServerConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, 8080, sc.Port)
	require.Equal(t, config.DefaultServerConfig().ShutdownTimeout, sc.ShutdownTimeout)

	cfg.Server.Port = 70000
	_, err = BindServerConfig(cfg)
	require.ErrorIs(t, err, srv.ErrInvalidPort)
}

func TestBindProcessor(t *testing.T) {
	cfg := config.DefaultConfig().Processor
	cfg.Simulate.MaxLatency = time.Millisecond

	proc, err := BindProcessor(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &simulate.Processor{}, proc)

	cfg.Kind = "dalle"
	_, err = BindProcessor(context.Background(), cfg)
	var unknown *UnknownProcessorError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "dalle", unknown.Kind)
}

func TestBindProcessor_GeminiRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := config.DefaultConfig().Processor
	cfg.Kind = "gemini"

	_, err := BindProcessor(context.Background(), cfg)
	require.ErrorIs(t, err, gemini.ErrMissingAPIKey)
}
