package logger_test

import (
	"testing"

	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		logging   config.LoggingConfig
		env       string
		wantDebug bool
	}{
		{name: "development console", logging: config.LoggingConfig{Level: "debug", Format: "console"}, env: "development", wantDebug: true},
		{name: "production json", logging: config.LoggingConfig{Level: "info", Format: "console"}, env: "production", wantDebug: false},
		{name: "invalid level falls back to info", logging: config.LoggingConfig{Level: "loud"}, env: "development", wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := logger.NewLogger(&tt.logging, &config.AppConfig{Name: "dealflow", Environment: tt.env})
			require.NoError(t, err)
			assert.Equal(t, tt.wantDebug, log.Core().Enabled(zapcore.DebugLevel))
			assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
		})
	}
}
