package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const DefaultWarnPercent = 80

// BacklogSource exposes the fill level of a buffered channel.
type BacklogSource interface {
	Backlog() (length, capacity int)
}

// ChannelCapacityWorker periodically samples the event buffer of the gateway.
// Reading len and cap is non-blocking so sampling never slows the emitters.
// A buffer above warnPercent means the fan-out lags behind the committers and
// events are about to be dropped.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	name           string
	source         BacklogSource
	metricInterval time.Duration
	warnPercent    int
	peak           atomic.Int64
}

func NewChannelCapacityWorker(log *slog.Logger, name string, source BacklogSource,
	metricInterval time.Duration, warnPercent int) *ChannelCapacityWorker {
	if warnPercent <= 0 || warnPercent > 100 {
		warnPercent = DefaultWarnPercent
	}
	return &ChannelCapacityWorker{
		log:            log,
		name:           name,
		source:         source,
		metricInterval: metricInterval,
		warnPercent:    warnPercent,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling", "channel", w.name)
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

// Peak is the highest length observed since start.
func (w *ChannelCapacityWorker) Peak() int {
	return int(w.peak.Load())
}

func (w *ChannelCapacityWorker) sample() {
	length, capacity := w.source.Backlog()
	for {
		peak := w.peak.Load()
		if int64(length) <= peak || w.peak.CompareAndSwap(peak, int64(length)) {
			break
		}
	}
	if capacity == 0 {
		return
	}
	if length*100 >= capacity*w.warnPercent {
		w.log.Warn("Channel close to capacity", "channel", w.name, "length", length, "capacity", capacity)
		return
	}
	w.log.Debug("Channel capacity", "channel", w.name, "length", length, "capacity", capacity)
}
