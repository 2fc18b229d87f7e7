package masfro

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// inboxCapacity bounds each agent's FIFO queue. Past this size the bus
// evicts the oldest message and logs, per the backpressure policy in
// spec.md §5 — agents must tolerate a missing message.
const inboxCapacity = 1024

type inbox struct {
	mu       sync.Mutex
	notEmpty chan struct{} // buffered(1) signal, refilled on every send
	queue    []ACLMessage
}

func newInbox() *inbox {
	return &inbox{notEmpty: make(chan struct{}, 1)}
}

func (b *inbox) push(msg ACLMessage) (evicted bool) {
	b.mu.Lock()
	if len(b.queue) >= inboxCapacity {
		b.queue = b.queue[1:]
		evicted = true
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
	return evicted
}

// pop removes and returns the oldest message, or ok=false if empty.
func (b *inbox) pop() (ACLMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return ACLMessage{}, false
	}
	msg := b.queue[0]
	b.queue = b.queue[1:]
	return msg, true
}

func (b *inbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *inbox) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = nil
}

// MessageBus is an in-process ACL message router: one FIFO inbox per
// registered agent id, at-most-once intra-process delivery. The bus does
// not interpret performatives; all semantics live in the agents.
type MessageBus struct {
	mu      sync.RWMutex
	inboxes map[string]*inbox
	logger  func(format string, args ...any)
}

// NewMessageBus creates an empty bus. log may be nil, in which case bus
// diagnostics (evictions, unregistered sends) are discarded.
func NewMessageBus(log func(format string, args ...any)) *MessageBus {
	if log == nil {
		log = func(string, ...any) {}
	}
	return &MessageBus{inboxes: make(map[string]*inbox), logger: log}
}

// Register creates an inbox for agentID. Returns
// ErrAgentCommunication if already registered.
func (b *MessageBus) Register(agentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[agentID]; ok {
		return NewAgentCommunicationError(fmt.Sprintf("agent %q already registered", agentID))
	}
	b.inboxes[agentID] = newInbox()
	return nil
}

// Unregister removes agentID's inbox, dropping any queued messages.
// Unregistering an unknown agent is a hard error.
func (b *MessageBus) Unregister(agentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[agentID]; !ok {
		return NewAgentCommunicationError(fmt.Sprintf("agent %q not registered", agentID))
	}
	delete(b.inboxes, agentID)
	return nil
}

// Send enqueues msg into msg.Receiver's inbox. Sending to an
// unregistered receiver is a hard error.
func (b *MessageBus) Send(msg ACLMessage) error {
	b.mu.RLock()
	ib, ok := b.inboxes[msg.Receiver]
	b.mu.RUnlock()
	if !ok {
		return NewAgentCommunicationError(fmt.Sprintf("unregistered receiver %q", msg.Receiver))
	}
	if evicted := ib.push(msg); evicted {
		b.logger("bus: inbox %q full, evicted oldest message", msg.Receiver)
	}
	return nil
}

// Broadcast sends msg to every registered agent except excludeSender (and
// the message's own declared sender, if set). Per-recipient copies carry
// each recipient as Receiver.
func (b *MessageBus) Broadcast(msg ACLMessage, excludeSender string) error {
	b.mu.RLock()
	recipients := make([]string, 0, len(b.inboxes))
	for id := range b.inboxes {
		if id == excludeSender || (msg.Sender != "" && id == msg.Sender) {
			continue
		}
		recipients = append(recipients, id)
	}
	b.mu.RUnlock()

	for _, id := range recipients {
		copyMsg := msg
		copyMsg.Receiver = id
		if err := b.Send(copyMsg); err != nil {
			return err
		}
	}
	return nil
}

// Receive returns the next message for agentID. If block is false,
// it returns immediately (ok=false if empty). If block is true, it waits
// up to timeout (or indefinitely if timeout <= 0, until ctx is done) for
// a message to arrive.
func (b *MessageBus) Receive(ctx context.Context, agentID string, block bool, timeout time.Duration) (ACLMessage, bool, error) {
	b.mu.RLock()
	ib, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return ACLMessage{}, false, NewAgentCommunicationError(fmt.Sprintf("unregistered agent %q", agentID))
	}

	if msg, ok := ib.pop(); ok {
		return msg, true, nil
	}
	if !block {
		return ACLMessage{}, false, nil
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		select {
		case <-ib.notEmpty:
			if msg, ok := ib.pop(); ok {
				return msg, true, nil
			}
			// spurious wakeup (another goroutine drained it first); keep waiting
		case <-timeoutCh:
			return ACLMessage{}, false, nil
		case <-ctx.Done():
			return ACLMessage{}, false, ctx.Err()
		}
	}
}

// Size returns the current queue depth for agentID.
func (b *MessageBus) Size(agentID string) int {
	b.mu.RLock()
	ib, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	return ib.len()
}

// Clear discards all queued messages for agentID.
func (b *MessageBus) Clear(agentID string) {
	b.mu.RLock()
	ib, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if ok {
		ib.clear()
	}
}
