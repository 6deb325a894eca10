// Package alert announces newly installed surrogate models on a redis channel.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	alertDb "github.com/go-sod/surrogate/internal/alert/database"
	"github.com/go-sod/surrogate/internal/alert/model"
	"github.com/go-sod/surrogate/internal/database"
	"github.com/go-sod/surrogate/internal/logging"
)

type ProvideFn = func(chan<- error) (Manager, error)

// Publisher delivers an encoded event to subscribers of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

type redisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(ctx context.Context, cfg *Config) (Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	return &redisPublisher{client: client}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}

type Options struct {
	interval       time.Duration
	requestTimeout time.Duration
	channel        string
}

type Option func(*manager)

func WithInterval(t time.Duration) Option {
	return func(o *manager) {
		o.opts.interval = t
	}
}

func WithRequestTimeout(t time.Duration) Option {
	return func(o *manager) {
		o.opts.requestTimeout = t
	}
}

func WithChannel(ch string) Option {
	return func(o *manager) {
		o.opts.channel = ch
	}
}

type Notifier interface {
	Notify(events ...model.ModelEvent)
}

type Manager interface {
	Notifier
	Run(context.Context) error
	Stop()
}

func New(db *database.DB, pub Publisher, shutdownCh chan<- error, opts ...Option) (*manager, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher instance is not created")
	}
	m := &manager{
		alertDb:    alertDb.New(db),
		publisher:  pub,
		shutdownCh: shutdownCh,
		opts: Options{
			interval:       5 * time.Second,
			requestTimeout: 3 * time.Second,
			channel:        "surrogate:models",
		},
	}
	for _, f := range opts {
		f(m)
	}
	return m, nil
}

type manager struct {
	mtx        sync.Mutex
	opts       Options
	alertDb    *alertDb.DB
	publisher  Publisher
	shutdownCh chan<- error
	pending    []model.ModelEvent
	cancel     func()
}

func (m *manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	if err := m.initialize(ctx); err != nil {
		cancel()
		return fmt.Errorf("can not start alert manager: %w", err)
	}
	go m.notifier(ctx)
	return nil
}

func (m *manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *manager) Notify(events ...model.ModelEvent) {
	m.mtx.Lock()
	m.pending = append(m.pending, events...)
	m.mtx.Unlock()
}

// initialize requeues the events left unpublished by the previous run.
func (m *manager) initialize(ctx context.Context) error {
	events, err := m.alertDb.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch pending events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	logging.FromContext(ctx).Infof("restored %d pending model events", len(events))
	m.Notify(events...)
	if err := m.alertDb.Delete(ctx, events...); err != nil {
		return fmt.Errorf("delete pending events: %w", err)
	}
	return nil
}

func (m *manager) shutdown() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if len(m.pending) > 0 {
		if err := m.alertDb.Store(context.Background(), m.pending...); err != nil {
			return fmt.Errorf("alert shutdown: unable store events: %w", err)
		}
		m.pending = nil
	}
	if err := m.publisher.Close(); err != nil {
		return fmt.Errorf("alert shutdown: close publisher: %w", err)
	}
	return nil
}

func (m *manager) notifier(ctx context.Context) {
	defer func() {
		m.shutdownCh <- m.shutdown()
	}()
	ticker := time.NewTicker(m.opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// flush publishes the pending events in order. Events after the first failure stay pending.
func (m *manager) flush(ctx context.Context) {
	logger := logging.FromContext(ctx)
	m.mtx.Lock()
	events := m.pending
	m.pending = nil
	m.mtx.Unlock()

	for i := range events {
		if err := m.publish(ctx, events[i]); err != nil {
			logger.Errorf("unable publish model event %s: %v", events[i].ID, err)
			m.mtx.Lock()
			m.pending = append(events[i:len(events):len(events)], m.pending...)
			m.mtx.Unlock()
			return
		}
	}
}

func (m *manager) publish(ctx context.Context, event model.ModelEvent) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.requestTimeout)
	defer cancel()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("unable encode json data: %w", err)
	}
	if err := m.publisher.Publish(ctx, m.opts.channel, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", m.opts.channel, err)
	}
	return nil
}

// NewNoop returns a manager that drops every event. It is used when no redis address is set.
func NewNoop(shutdownCh chan<- error) Manager {
	return &noop{shutdownCh: shutdownCh}
}

type noop struct {
	shutdownCh chan<- error
	cancel     func()
}

func (n *noop) Notify(...model.ModelEvent) {}

func (n *noop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	go func() {
		<-ctx.Done()
		n.shutdownCh <- nil
	}()
	return nil
}

func (n *noop) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
}
