package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		level       string
		wantEnabled slog.Level
		wantMuted   slog.Level
	}{
		{name: "debug", level: "debug", wantEnabled: slog.LevelDebug, wantMuted: slog.LevelDebug - 1},
		{name: "info", level: "info", wantEnabled: slog.LevelInfo, wantMuted: slog.LevelDebug},
		{name: "warn", level: "warn", wantEnabled: slog.LevelWarn, wantMuted: slog.LevelInfo},
		{name: "error", level: "error", wantEnabled: slog.LevelError, wantMuted: slog.LevelWarn},
		{name: "unknown falls back to info", level: "loud", wantEnabled: slog.LevelInfo, wantMuted: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			log := New(tt.level, true)
			ctx := context.Background()
			if !log.Enabled(ctx, tt.wantEnabled) {
				t.Errorf("level %q does not enable %v", tt.level, tt.wantEnabled)
			}
			if log.Enabled(ctx, tt.wantMuted) {
				t.Errorf("level %q unexpectedly enables %v", tt.level, tt.wantMuted)
			}
		})
	}
}
