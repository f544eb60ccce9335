package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sprintboard/internal/config"
	"sprintboard/internal/domain"
	"sprintboard/internal/engine"
	"sprintboard/internal/logger"
	"sprintboard/internal/metrics"
)

const (
	webhookInterval = 2 * time.Second
	webhookTimeout  = 5 * time.Second
	webhookBatch    = 100

	signatureHeader = "X-Sprintboard-Signature"
)

// hook is one configured endpoint and its delivery position in the event log.
type hook struct {
	url    string
	secret string
	types  map[string]bool
	client *http.Client

	mu     sync.Mutex
	cursor int64
	primed bool
}

func newHook(cfg config.WebhookConfig) *hook {
	timeout := webhookTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	h := &hook{
		url:    strings.TrimSpace(cfg.URL),
		secret: strings.TrimSpace(cfg.Secret),
		client: &http.Client{Timeout: timeout},
	}
	for _, t := range cfg.Events {
		if t = strings.TrimSpace(t); t != "" {
			if h.types == nil {
				h.types = map[string]bool{}
			}
			h.types[t] = true
		}
	}
	return h
}

func (h *hook) wants(eventType string) bool {
	return h.types == nil || h.types[eventType]
}

// Dispatcher polls the event log and posts new events to the configured
// webhooks. A hook starts at the newest event when first seen and stops at
// the first failed delivery, which is retried on the next round.
type Dispatcher struct {
	engine   engine.Engine
	hooks    []*hook
	log      *zap.Logger
	interval time.Duration
}

// NewDispatcher returns nil when no enabled hook is configured.
func NewDispatcher(e engine.Engine, log *zap.Logger) *Dispatcher {
	if e.Config == nil {
		return nil
	}
	var hooks []*hook
	for _, cfg := range e.Config.Webhooks {
		if cfg.Enabled != nil && !*cfg.Enabled {
			continue
		}
		if h := newHook(cfg); h.url != "" {
			hooks = append(hooks, h)
		}
	}
	if len(hooks) == 0 {
		return nil
	}
	return &Dispatcher{
		engine:   e,
		hooks:    hooks,
		log:      logger.OrNop(log).Named("webhooks"),
		interval: webhookInterval,
	}
}

// Run dispatches until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// DispatchAll runs one delivery round over every hook.
func (d *Dispatcher) DispatchAll(ctx context.Context) {
	for _, h := range d.hooks {
		d.deliver(ctx, h)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, h *hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.primed {
		latest, err := d.engine.Repo.LatestEventID(ctx, "")
		if err != nil {
			d.log.Warn("prime cursor", zap.String("url", h.url), zap.Error(err))
			return
		}
		h.cursor, h.primed = latest, true
	}
	batch, err := d.engine.Repo.EventsAfter(ctx, webhookBatch, h.cursor, "")
	if err != nil {
		d.log.Warn("read events", zap.Error(err))
		return
	}
	for _, evt := range batch {
		if h.wants(evt.Type) {
			err := d.post(ctx, h, evt)
			metrics.WebhookCounter.WithLabelValues(metrics.Outcome(err)).Inc()
			if err != nil {
				d.log.Warn("delivery failed",
					zap.String("url", h.url),
					zap.Int64("event_id", evt.ID),
					zap.Error(err))
				return
			}
		}
		h.cursor = evt.ID
	}
}

// sign returns the hex HMAC-SHA256 of body keyed by secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) post(ctx context.Context, h *hook, evt domain.Event) error {
	body, err := json.Marshal(eventResponse(evt))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sprintboard-Event", evt.Type)
	req.Header.Set("X-Sprintboard-Delivery", strconv.FormatInt(evt.ID, 10))
	if evt.ProjectID != "" {
		req.Header.Set("X-Sprintboard-Project", evt.ProjectID)
	}
	if h.secret != "" {
		req.Header.Set(signatureHeader, sign(h.secret, body))
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
