package masfro

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// Agent is the contract every scheduled domain agent implements. Step
// drains the agent's inbox (nonblocking) and performs any time-driven
// periodic work. Step must be idempotent with respect to an empty inbox
// and must not block on network I/O — long work is spawned as a
// goroutine from Step and reports back by enqueuing a message.
type Agent interface {
	ID() string
	Step(ctx context.Context)
}

// scheduledAgent pairs an agent with its tick priority (lower first).
type scheduledAgent struct {
	agent    Agent
	priority int
	running  sync.Mutex // held for the duration of a Step call; enforces non-overlap
}

// Scheduler is the fixed-Hz cooperative agent-lifecycle driver (C3): it
// invokes Step on every registered agent, in priority order, once per
// tick period.
type Scheduler struct {
	mu     sync.Mutex
	agents []*scheduledAgent
	period time.Duration
	pause  func() bool // optional global pause predicate (simulation mode)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewScheduler creates a Scheduler ticking every period. pause, if
// non-nil, is consulted once per tick; while it returns true, the
// scheduler skips the tick entirely rather than stepping any agent.
func NewScheduler(period time.Duration, pause func() bool) *Scheduler {
	return &Scheduler{
		period: period,
		pause:  pause,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Register adds an agent at the given priority (lower runs first within
// a tick). Must be called before Run.
func (s *Scheduler) Register(agent Agent, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = append(s.agents, &scheduledAgent{agent: agent, priority: priority})
	sort.SliceStable(s.agents, func(i, j int) bool {
		return s.agents[i].priority < s.agents[j].priority
	})
}

// Run starts the tick loop. It blocks until ctx is cancelled or Stop is
// called. Ticks start on the ticker boundary and run inline in this
// loop, so a tick that takes longer than period delays the next one; the
// ticker drops the firings missed meanwhile (catch-up is therefore
// at-most-one: a slow tick never queues multiple).
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.pause != nil && s.pause() {
				continue
			}
			s.tick(ctx)
		}
	}
}

// tick runs one Step per registered agent, in priority order. Per-agent
// Step invocations never overlap (each scheduledAgent.running guards
// it), but this call itself runs agents sequentially within the tick —
// matching the "single scheduler thread" model in spec.md §5.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	agents := make([]*scheduledAgent, len(s.agents))
	copy(agents, s.agents)
	s.mu.Unlock()

	for _, sa := range agents {
		if !sa.running.TryLock() {
			// previous Step for this agent is still running; drop this tick
			// for it rather than overlap (at-most-one catch-up semantics).
			log.Printf("masfro: scheduler: skipped tick for %s (previous step still running)", sa.agent.ID())
			continue
		}
		func() {
			defer sa.running.Unlock()
			sa.agent.Step(ctx)
		}()
	}
}

// Stop waits for the in-flight tick cycle to complete, then returns. No
// new ticks start after Stop begins.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
