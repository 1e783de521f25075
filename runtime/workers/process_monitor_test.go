package workers

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProcessMonitor_SamplesOwnProcess(t *testing.T) {
	req := require.New(t)
	monitor := NewProcessMonitor(slog.Default(), 10*time.Millisecond)
	req.Nil(monitor.Latest())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- monitor.Run(ctx) }()

	req.Eventually(func() bool { return monitor.Latest() != nil }, time.Second, 5*time.Millisecond)
	cancel()
	req.NoError(<-done)

	stats := monitor.Latest()
	req.Equal(int32(os.Getpid()), stats.PID)
	req.Positive(stats.RSSBytes)
	req.Positive(stats.Goroutines)
}
