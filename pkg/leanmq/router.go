package leanmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// HandlerFunc processes a dispatched message. Return nil for success; a
// non-nil error moves the message to the route's dead letter queue.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Route is a registered path-to-queue-to-handler binding.
type Route struct {
	Path      string
	QueueName string
	handler   HandlerFunc
	queue     *Queue
}

// Webhook provides a webhook-shaped interface over queues: handlers are
// registered against paths, and sends are addressed by path. Each path maps
// deterministically to a queue pair.
type Webhook struct {
	svc          *QueueService
	ownsService  bool
	logger       *slog.Logger
	consumerName string

	mu      sync.RWMutex
	routes  []*Route // insertion order, dispatch order
	byPath  map[string]*Route
	byQueue map[string]*Route

	service *Service // set when AutoStart spawned a worker
}

// NewWebhook connects to the backend and returns a webhook router. With
// cfg.Webhook.AutoStart a background service is started immediately with
// default options.
func NewWebhook(cfg Config) (*Webhook, error) {
	svc, err := NewQueueService(cfg)
	if err != nil {
		return nil, err
	}
	w := newWebhook(svc)
	w.ownsService = true

	if svc.client.Config().Webhook.AutoStart {
		w.service = w.RunService(ServiceOptions{})
	}
	return w, nil
}

// NewWebhookWithService builds a webhook router over an existing service.
// The caller keeps ownership of the service.
func NewWebhookWithService(svc *QueueService) *Webhook {
	return newWebhook(svc)
}

func newWebhook(svc *QueueService) *Webhook {
	return &Webhook{
		svc:          svc,
		logger:       slog.Default(),
		consumerName: generateConsumerName("webhook"),
		byPath:       make(map[string]*Route),
		byQueue:      make(map[string]*Route),
	}
}

// Service returns the queue service backing this webhook.
func (w *Webhook) Service() *QueueService { return w.svc }

// Close stops any auto-started worker and releases backend resources owned
// by this webhook.
func (w *Webhook) Close() error {
	if w.service != nil {
		w.service.Stop()
	}
	if w.ownsService {
		return w.svc.Close()
	}
	return nil
}

// NormalizePath brings a path to canonical form: a leading slash is ensured
// and a trailing slash removed (except for the root).
func NormalizePath(path string) string {
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// PathToQueueName derives the queue name for a path: separators become
// underscores, as does every non-alphanumeric character.
func PathToQueueName(path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", fmt.Errorf("leanmq: path '%s' yields an empty queue name", path)
	}

	var b strings.Builder
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String(), nil
}

// Register binds a handler to a path, creating the queue pair for the path
// if needed. Registering the same path again replaces the handler in place;
// dispatch order follows first registration.
//
// Registration is expected during startup, before the dispatcher runs.
func (w *Webhook) Register(ctx context.Context, path string, handler HandlerFunc) error {
	if handler == nil {
		return errors.New("leanmq: nil handler")
	}

	normalized := NormalizePath(path)
	queueName, err := PathToQueueName(normalized)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.byPath[normalized]; ok {
		existing.handler = handler
		return nil
	}

	queue, _, err := w.svc.CreateQueuePair(ctx, queueName)
	if err != nil {
		return err
	}

	route := &Route{
		Path:      normalized,
		QueueName: queueName,
		handler:   handler,
		queue:     queue,
	}
	w.routes = append(w.routes, route)
	w.byPath[normalized] = route
	w.byQueue[queueName] = route
	return nil
}

// Send publishes a message addressed by path. The queue pair is created on
// first use, so sends do not require a registered handler on this process.
// Returns the backend-assigned message id.
func (w *Webhook) Send(ctx context.Context, path string, body map[string]any) (string, error) {
	normalized := NormalizePath(path)
	queueName, err := PathToQueueName(normalized)
	if err != nil {
		return "", err
	}

	queue := w.queueForSend(queueName)
	if queue == nil {
		queue, _, err = w.svc.CreateQueuePair(ctx, queueName)
		if err != nil {
			return "", err
		}
	}

	msg := &Message{
		Body: body,
		Path: normalized,
	}
	return queue.publish(ctx, msg)
}

// queueForSend resolves a registered route's queue without hitting the
// backend, or nil when the path is not routed here.
func (w *Webhook) queueForSend(queueName string) *Queue {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if route, ok := w.byQueue[queueName]; ok {
		return route.queue
	}
	return nil
}

// RouteForPath returns the route registered for path, if any.
func (w *Webhook) RouteForPath(path string) (*Route, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	route, ok := w.byPath[NormalizePath(path)]
	return route, ok
}

// RouteForQueue returns the route whose queue is queueName, if any.
func (w *Webhook) RouteForQueue(queueName string) (*Route, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	route, ok := w.byQueue[queueName]
	return route, ok
}

// Routes returns the registered routes in registration order.
func (w *Webhook) Routes() []*Route {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Route, len(w.routes))
	copy(out, w.routes)
	return out
}

// generateConsumerName creates a unique consumer name.
// Format: {tag}-{hostname}-{pid}-{short_uuid}
func generateConsumerName(tag string) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%s-%d-%s", tag, hostname, os.Getpid(), shortUUID)
}
