package logging

import (
	"bytes"
	stdLog "log"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("test", zerolog.DebugLevel, &buf)

	logger.Debug().Msg("test debug message")
	assert.Contains(t, buf.String(), "test debug message")
	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("test", zerolog.InfoLevel, &buf)

	logger.Debug().Msg("debug message")
	assert.NotContains(t, buf.String(), "debug message")

	logger.Info().Msg("info message")
	assert.Contains(t, buf.String(), "info message")

	logger.Warn().Msg("warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "", want: zerolog.WarnLevel},
		{in: "debug", want: zerolog.DebugLevel},
		{in: "INFO", want: zerolog.InfoLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigureGlobalLogging(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
		SetLogWriter(os.Stderr)
		stdLog.SetOutput(os.Stderr)
	})

	var buf bytes.Buffer
	SetLogWriter(&buf)

	require.NoError(t, ConfigureGlobalLogging("info", FormatJSON))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.Info().Str("component", "queue").Msg("Queue started")
	log.Debug().Msg("hidden")
	assert.Contains(t, buf.String(), `"message":"Queue started"`)
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	require.NoError(t, ConfigureGlobalLogging("debug", FormatJSON))
	stdLog.Print("http: TLS handshake error")
	assert.Contains(t, buf.String(), `"source":"stdlog"`)
}

func TestConfigureGlobalLoggingRejectsBadInput(t *testing.T) {
	assert.Error(t, ConfigureGlobalLogging("chatty", FormatJSON))
	assert.Error(t, ConfigureGlobalLogging("info", "xml"))
}
