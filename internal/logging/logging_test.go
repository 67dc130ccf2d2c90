package logging

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "json debug", cfg: Config{Level: "debug", Format: "json"}},
		{name: "console warn", cfg: Config{Level: "warn", Format: "console"}},
		{name: "empty defaults to info json", cfg: Config{}},
		{name: "bad level", cfg: Config{Level: "trace"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "logfmt"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("error")
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestNew_LevelGates(t *testing.T) {
	logger, err := New(Config{Level: "warn", Format: "json"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestSync_SwallowsTerminalErrors(t *testing.T) {
	assert.True(t, isTerminalSyncError(syscall.EINVAL))
	assert.True(t, isTerminalSyncError(fmt.Errorf("sync /dev/stderr: %w", syscall.ENOTTY)))
	assert.False(t, isTerminalSyncError(errors.New("disk full")))
	assert.NoError(t, Sync(nil))
}
