// Package runtime carries committed events from the services to connected
// sessions. It holds no business rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-core/contract"
	"chat-core/runtime/workers"
)

type OrchestratorConfig struct {
	BufferSize         int
	SinkTimeout        time.Duration
	MetricInterval     time.Duration
	BacklogWarnPercent int
}

// Orchestrator owns the realtime pipeline: the gateway buffer, the fan-out
// worker draining it, the monitors and the broker relay when one is used.
// Every worker runs under the supervisor.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	gateway        *Gateway
	registry       *Registry
	transport      contract.ITransport
	relay          contract.Worker
	extra          []contract.Worker
	permanentSinks []contract.EventSink
	config         OrchestratorConfig
	capacity       *workers.ChannelCapacityWorker
	process        *workers.ProcessMonitor
}

// NewOrchestrator delivers through the local registry until UseTransport says otherwise.
func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry *Registry,
	config OrchestratorConfig) *Orchestrator {
	if config.MetricInterval <= 0 {
		config.MetricInterval = 10 * time.Second
	}
	gateway := NewGateway(log, config.BufferSize)
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		gateway:    gateway,
		registry:   registry,
		transport:  NewLocalTransport(registry),
		config:     config,
		capacity:   workers.NewChannelCapacityWorker(log, "gateway", gateway, config.MetricInterval, config.BacklogWarnPercent),
		process:    workers.NewProcessMonitor(log, config.MetricInterval),
	}
}

// Emitter is what the services emit into.
func (o *Orchestrator) Emitter() contract.IEmitter {
	return o.gateway
}

// LocalTransport delivers to the sessions of this instance only.
func (o *Orchestrator) LocalTransport() contract.ITransport {
	return NewLocalTransport(o.registry)
}

// UseTransport swaps delivery to a broker. relay may be nil when the
// transport needs no receiving side.
func (o *Orchestrator) UseTransport(transport contract.ITransport, relay contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transport = transport
	o.relay = relay
}

// Supervise runs background workers owned by other layers alongside the pipeline.
func (o *Orchestrator) Supervise(ws ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extra = append(o.extra, ws...)
}

// Add registers sinks receiving every event, whoever its audience.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Start registers the pipeline workers and blocks until the supervisor stops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	fanout := workers.NewEventFanout(o.log, o.gateway.Events(), o.transport, o.config.SinkTimeout, o.permanentSinks...)
	o.supervisor.Add(fanout, o.capacity, o.process)
	if o.relay != nil {
		o.supervisor.Add(o.relay)
	}
	if len(o.extra) > 0 {
		o.supervisor.Add(o.extra...)
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised workers; Start returns once they exit.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// Health reports the pipeline state for the health endpoint.
func (o *Orchestrator) Health() map[string]any {
	backlog, capacity := o.gateway.Backlog()
	return map[string]any{
		"process":        o.process.Latest(),
		"eventBacklog":   backlog,
		"eventCapacity":  capacity,
		"eventPeak":      o.capacity.Peak(),
		"connectedUsers": o.registry.Connected(),
	}
}
