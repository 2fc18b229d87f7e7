// Package agents implements the domain agents (C5-C7, C9-C11) on top of
// the root package's scheduler, bus, graph, and router primitives.
// Grounded on the teacher's agent/agentcore split
// (_examples/nevindra-oasis/agentcore.go): shared plumbing lives here,
// domain behavior lives in one file per agent.
package agents

import (
	"context"
	"log/slog"

	masfro "github.com/PolySpade/masfro"
)

// base is embedded by every domain agent. It owns the agent's bus handle
// and a logger, and provides the send/reply/drain helpers every agent
// needs to satisfy masfro.Agent's "Step must not block" contract.
type base struct {
	id     string
	bus    *masfro.MessageBus
	logger *slog.Logger
}

func newBase(id string, bus *masfro.MessageBus, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{id: id, bus: bus, logger: logger}
}

// ID implements masfro.Agent.
func (b *base) ID() string { return b.id }

// send enqueues msg, logging (not panicking) on a bus-level failure —
// per spec.md §5, agents must tolerate inbox backpressure and bus
// errors degrade to a log line, never a crash.
func (b *base) send(msg masfro.ACLMessage) {
	if err := b.bus.Send(msg); err != nil {
		b.logger.Warn("send failed", "agent", b.id, "receiver", msg.Receiver, "err", err)
	}
}

// inform sends an INFORM with the given info_type and data from b to
// receiver, outside any particular conversation.
func (b *base) inform(receiver, infoType string, data map[string]any) {
	b.send(masfro.NewMessage(masfro.Inform, b.id, receiver, masfro.Content{
		InfoType: infoType,
		Data:     data,
	}))
}

// drain pops every currently-queued message for this agent (nonblocking)
// and invokes handle on each, in FIFO order. This is the nonblocking
// inbox-drain shape every Step implementation uses (spec.md §5: "Step
// drains the agent's inbox (nonblocking)").
func (b *base) drain(ctx context.Context, handle func(masfro.ACLMessage)) {
	for {
		msg, ok, err := b.bus.Receive(ctx, b.id, false, 0)
		if err != nil || !ok {
			return
		}
		handle(msg)
	}
}

// failureReply builds a FAILURE reply carrying err's text.
func failureReply(msg masfro.ACLMessage, from string, err error) masfro.ACLMessage {
	return masfro.ReplyTo(msg, masfro.Failure, from, masfro.Content{Error: err.Error()})
}
