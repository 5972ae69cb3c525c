package registration

import (
	"context"
	"net/netip"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/nodekeeper/internal/async"
	"github.com/dreamware/nodekeeper/internal/bootnode"
	"github.com/dreamware/nodekeeper/internal/enode"
	"github.com/dreamware/nodekeeper/internal/fault"
	"github.com/dreamware/nodekeeper/internal/metrics"
)

// State is the phase of the registration cycle.
type State int

const (
	Idle State = iota
	FetchingOwnAddress
	PublishingAddress
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case FetchingOwnAddress:
		return "FetchingOwnAddress"
	case PublishingAddress:
		return "PublishingAddress"
	default:
		return "Unknown"
	}
}

// Fetcher returns this node's own enode, normally *jsonrpc.Client.
type Fetcher interface {
	OwnAddress(ctx context.Context) (enode.Address, error)
}

// Publisher writes an enode record to the registry, normally
// *bootnode.Client.
type Publisher interface {
	Publish(ctx context.Context, info bootnode.EnodeInfo) error
}

// Config is the node metadata published next to the enode.
type Config struct {
	PublicIP netip.Addr // declared public address, may be unspecified
	Network  string     // network name the record is filed under
	Miner    bool       // whether this node seals blocks
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics records cycles, triggers and queue depth.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) {
		m.metrics = mt
	}
}

// WithClock sets the clock used to timestamp tokens.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) {
		m.clock = c
	}
}

// Machine is the registration state machine.
//
// Trigger is safe from any goroutine. Advance, State and Close belong to
// the single driver goroutine.
type Machine struct {
	ctx       context.Context
	fetcher   Fetcher
	publisher Publisher
	clock     clock.Clock
	cancel    context.CancelFunc
	queue     *Queue
	waker     *async.Waker
	logger    *zap.Logger
	metrics   *metrics.Metrics
	fetch     *async.Future[enode.Address] // set only while FetchingOwnAddress
	publish   *async.Future[struct{}]      // set only while PublishingAddress
	cfg       Config
	token     Token // token served by the current cycle
	state     State
}

// New returns an Idle machine. ctx bounds every fetch and publish it
// starts; Close cancels it.
func New(ctx context.Context, cfg Config, fetcher Fetcher, publisher Publisher, opts ...Option) *Machine {
	ctx, cancel := context.WithCancel(ctx)
	m := &Machine{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		fetcher:   fetcher,
		publisher: publisher,
		clock:     clock.New(),
		queue:     &Queue{},
		waker:     async.NewWaker(),
		logger:    zap.NewNop(),
		state:     Idle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Trigger enqueues one registration request and wakes the driver.
func (m *Machine) Trigger() Token {
	tok := Token{ID: uuid.New(), At: m.clock.Now()}
	depth := m.queue.Push(tok)
	m.metrics.Triggered(depth)
	m.waker.Wake()
	return tok
}

// Pending returns the number of queued triggers.
func (m *Machine) Pending() int {
	return m.queue.Len()
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Wake is signalled whenever Advance may make progress.
func (m *Machine) Wake() <-chan struct{} {
	return m.waker.C()
}

// Close cancels any in-flight fetch or publish without waiting for it.
func (m *Machine) Close() {
	m.cancel()
}

// Advance makes all progress that is possible without blocking and
// returns. It never fails: errors reset the machine to Idle.
func (m *Machine) Advance() {
	for m.step() {
	}
}

// step performs at most one transition and reports whether it did.
func (m *Machine) step() bool {
	var (
		progressed bool
		err        error
	)
	switch m.state {
	case Idle:
		progressed, err = m.stepIdle()
	case FetchingOwnAddress:
		progressed, err = m.stepFetching()
	case PublishingAddress:
		progressed, err = m.stepPublishing()
	default:
		err = fault.NewInternal("registration", m.state.String(), Idle.String())
	}

	if err != nil {
		m.logger.Error("registration state reset", zap.Error(err))
		m.metrics.Cycle(metrics.ResultReset)
		m.reset()
		return true
	}
	return progressed
}

// held returns the state implied by the operation the machine holds.
func (m *Machine) held() State {
	switch {
	case m.fetch != nil && m.publish == nil:
		return FetchingOwnAddress
	case m.publish != nil && m.fetch == nil:
		return PublishingAddress
	case m.fetch == nil && m.publish == nil:
		return Idle
	default:
		return State(-1)
	}
}

func (m *Machine) check(expected State) error {
	if held := m.held(); held != expected {
		return fault.NewInternal("registration", held.String(), expected.String())
	}
	return nil
}

func (m *Machine) stepIdle() (bool, error) {
	if err := m.check(Idle); err != nil {
		return false, err
	}

	tok, ok := m.queue.Pop()
	if !ok {
		return false, nil
	}
	m.metrics.Dequeued(m.queue.Len())
	m.token = tok

	m.logger.Debug("registration cycle started",
		zap.Stringer("token", tok.ID),
		zap.Duration("queued", m.clock.Since(tok.At)))

	m.fetch = async.Spawn(m.ctx, m.waker, m.fetcher.OwnAddress)
	m.state = FetchingOwnAddress
	return true, nil
}

func (m *Machine) stepFetching() (bool, error) {
	if err := m.check(FetchingOwnAddress); err != nil {
		return false, err
	}

	addr, ready, err := m.fetch.Poll()
	if !ready {
		return false, nil
	}
	m.fetch = nil

	if err != nil {
		m.logger.Warn("fetch own enode",
			zap.Stringer("token", m.token.ID),
			zap.Stringer("kind", fault.KindOf(err)),
			zap.Error(err))
		m.metrics.Cycle(metrics.ResultFetchFailed)
		m.state = Idle
		return true, nil
	}

	info := bootnode.NewEnodeInfo(addr, m.cfg.PublicIP, m.cfg.Network, m.cfg.Miner)
	m.logger.Info("publishing enode",
		zap.Stringer("token", m.token.ID),
		zap.Stringer("enode", addr),
		zap.String("network", m.cfg.Network))

	m.publish = async.Spawn(m.ctx, m.waker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.publisher.Publish(ctx, info)
	})
	m.state = PublishingAddress
	return true, nil
}

func (m *Machine) stepPublishing() (bool, error) {
	if err := m.check(PublishingAddress); err != nil {
		return false, err
	}

	_, ready, err := m.publish.Poll()
	if !ready {
		return false, nil
	}
	m.publish = nil
	m.state = Idle

	if err != nil {
		m.logger.Warn("publish enode",
			zap.Stringer("token", m.token.ID),
			zap.Stringer("kind", fault.KindOf(err)),
			zap.Error(err))
		m.metrics.Cycle(metrics.ResultPublishFailed)
		return true, nil
	}

	m.logger.Info("enode published",
		zap.Stringer("token", m.token.ID),
		zap.Duration("cycle", m.clock.Since(m.token.At)))
	m.metrics.Cycle(metrics.ResultPublished)
	return true, nil
}

// reset abandons any in-flight operation and returns to Idle.
func (m *Machine) reset() {
	if m.fetch != nil {
		m.fetch.Abandon()
	}
	if m.publish != nil {
		m.publish.Abandon()
	}
	m.fetch, m.publish = nil, nil
	m.state = Idle
}
