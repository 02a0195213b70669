package logger_test

import (
	"testing"

	"github.com/SergeiKhy/linktrack/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNew проверяет выбор уровня логирования
func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		debug   bool
		warn    bool
	}{
		{level: "debug", debug: true, warn: true},
		{level: "info", debug: false, warn: true},
		{level: "WARN", debug: false, warn: true},
		{level: "error", debug: false, warn: false},
		{level: "nonsense", debug: false, warn: true},
		{level: "", debug: false, warn: true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, err := logger.New(tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, l.Core().Enabled(zap.DebugLevel))
			assert.Equal(t, tt.warn, l.Core().Enabled(zap.WarnLevel))
		})
	}
}
