package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"

	"github.com/traf3li/clientops/observe"
	"github.com/traf3li/clientops/resilience"
)

// Sender defaults.
const (
	DefaultTTL         = 24 * time.Hour
	DefaultRate        = 50
	DefaultConcurrency = 8
	DefaultSendTimeout = 15 * time.Second
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	Store Store

	VAPIDPublicKey  string
	VAPIDPrivateKey string

	// Subject identifies the sender to push services, as a mailto: or
	// https: URL.
	Subject string

	// HTTPClient defaults to an http.Client through Observer's transport.
	HTTPClient webpush.HTTPClient

	// TTL is how long a push service keeps an undelivered message.
	// Default: 24 hours
	TTL time.Duration

	// Urgency defaults to normal.
	Urgency webpush.Urgency

	// Rate caps deliveries per second across all users.
	// Default: 50
	Rate float64

	// Concurrency caps deliveries in flight.
	// Default: 8
	Concurrency int

	// Timeout bounds one delivery.
	// Default: 15 seconds
	Timeout time.Duration

	Observer *observe.Middleware
}

// Message is one notification to deliver.
type Message struct {
	Payload Payload

	// Topic collapses pending messages with the same topic.
	Topic string

	// Urgency overrides the sender default.
	Urgency webpush.Urgency
}

// Report summarizes a fan-out.
type Report struct {
	Sent    int `json:"sent"`
	Pruned  int `json:"pruned"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// DeliveryError is a push service response other than success.
type DeliveryError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push: delivery to %s failed with status %d", e.Endpoint, e.Status)
}

// Gone reports whether the push service no longer knows the subscription.
func (e *DeliveryError) Gone() bool {
	return e.Status == http.StatusNotFound || e.Status == http.StatusGone
}

// Sender delivers web push messages with VAPID and prunes subscriptions the
// push service reports as gone.
type Sender struct {
	cfg  SenderConfig
	exec *resilience.Executor
	log  observe.Logger
}

// NewSender creates a Sender.
func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.Store == nil {
		return nil, errors.New("push: sender store is required")
	}
	if cfg.VAPIDPrivateKey == "" {
		return nil, errors.New("push: VAPID private key is required")
	}
	if _, err := DecodeVAPIDKey(cfg.VAPIDPublicKey); err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Urgency == "" {
		cfg.Urgency = webpush.UrgencyNormal
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	if cfg.Observer == nil {
		cfg.Observer = observe.NewMiddleware(nil, nil, nil)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Transport: cfg.Observer.Transport("push-sender", nil)}
	}

	exec := resilience.NewExecutor(
		resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:        cfg.Rate,
			Burst:       cfg.Concurrency,
			WaitOnLimit: true,
			MaxWait:     cfg.Timeout,
		})),
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.Concurrency,
			MaxWait:       cfg.Timeout,
		})),
		resilience.WithTimeout(cfg.Timeout),
	)

	return &Sender{
		cfg:  cfg,
		exec: exec,
		log:  cfg.Observer.Logger().With(observe.F("component", "push.sender")),
	}, nil
}

// Send delivers one message to one subscription.
func (s *Sender) Send(ctx context.Context, sub Subscription, msg Message) error {
	body, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("push: encode payload: %w", err)
	}
	return s.exec.Execute(ctx, func(ctx context.Context) error {
		return s.deliver(ctx, sub, body, msg)
	})
}

// SendToUser delivers msg to every subscription of userID that the user's
// preferences allow. Subscriptions reported gone are removed from the store.
func (s *Sender) SendToUser(ctx context.Context, userID string, msg Message) (Report, error) {
	if userID == "" {
		return Report{}, ErrMissingUser
	}

	prefs, err := s.cfg.Store.Preferences(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	records, err := s.cfg.Store.ForUser(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	if !prefs.Allows(msg.Payload.Tag) {
		return Report{Skipped: len(records)}, nil
	}

	var (
		mu     sync.Mutex
		report Report
	)
	count := func(f func(*Report)) {
		mu.Lock()
		f(&report)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, rec := range records {
		g.Go(func() error {
			err := s.Send(gctx, rec.Subscription, msg)
			var de *DeliveryError
			switch {
			case err == nil:
				count(func(r *Report) { r.Sent++ })
			case errors.As(err, &de) && de.Gone():
				if _, derr := s.cfg.Store.DeleteEndpoint(gctx, rec.Subscription.Endpoint); derr != nil {
					return derr
				}
				s.log.Info(gctx, "pruned expired push subscription",
					observe.F("user_id", userID), observe.F("endpoint", rec.Subscription.Endpoint))
				count(func(r *Report) { r.Pruned++ })
			default:
				s.log.Warn(gctx, "push delivery failed",
					observe.F("user_id", userID), observe.F("endpoint", rec.Subscription.Endpoint),
					observe.F("error", err.Error()))
				count(func(r *Report) { r.Failed++ })
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Sender) deliver(ctx context.Context, sub Subscription, body []byte, msg Message) error {
	urgency := msg.Urgency
	if urgency == "" {
		urgency = s.cfg.Urgency
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, sub.webpush(), &webpush.Options{
		HTTPClient:      s.cfg.HTTPClient,
		Subscriber:      strings.TrimPrefix(s.cfg.Subject, "mailto:"),
		Topic:           msg.Topic,
		TTL:             int(s.cfg.TTL / time.Second),
		Urgency:         urgency,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
	})
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	text, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	return &DeliveryError{Endpoint: sub.Endpoint, Status: resp.StatusCode, Body: string(text)}
}
