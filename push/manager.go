package push

import (
	"context"
	"fmt"

	"github.com/traf3li/clientops/config"
	"github.com/traf3li/clientops/observe"
	"github.com/traf3li/clientops/worker"
)

// Permission is the notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notifications reads and requests notification permission.
type Notifications interface {
	Permission() Permission
	// RequestPermission prompts the user. It returns the current state
	// without prompting once the user has decided.
	RequestPermission(ctx context.Context) (Permission, error)
}

// PushManager owns the browser push subscription.
type PushManager interface {
	// Subscription returns the current subscription, or nil.
	Subscription(ctx context.Context) (*Subscription, error)
	Subscribe(ctx context.Context, applicationServerKey []byte) (*Subscription, error)
	Unsubscribe(ctx context.Context, sub *Subscription) (bool, error)
}

// Registrar registers the offline worker. *worker.Container satisfies it.
type Registrar interface {
	Register(scriptURL, scope string) (*worker.Registration, error)
}

// Backend stores the subscription record for the signed-in user.
type Backend interface {
	Save(ctx context.Context, sub Subscription) error
	Delete(ctx context.Context, endpoint string) error
}

// ManagerConfig configures a Manager. Leaving Registrar, PushManager or
// Notifications nil marks push as unsupported.
type ManagerConfig struct {
	Registrar     Registrar
	PushManager   PushManager
	Notifications Notifications
	Backend       Backend

	// VAPIDPublicKey defaults to config.DefaultVAPIDPublicKey.
	VAPIDPublicKey string

	// ScriptURL and Scope default to worker.DefaultScriptURL and
	// worker.DefaultScope.
	ScriptURL string
	Scope     string

	Logger observe.Logger
}

// Manager keeps the browser subscription and the backend record in step.
type Manager struct {
	cfg ManagerConfig
	log observe.Logger
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.VAPIDPublicKey == "" {
		cfg.VAPIDPublicKey = config.DefaultVAPIDPublicKey
	}
	if cfg.ScriptURL == "" {
		cfg.ScriptURL = worker.DefaultScriptURL
	}
	if cfg.Scope == "" {
		cfg.Scope = worker.DefaultScope
	}
	log := cfg.Logger
	if log == nil {
		log = observe.NopLogger()
	}
	return &Manager{cfg: cfg, log: log.With(observe.F("component", "push.manager"))}
}

// Supported reports whether worker registration, a push manager and
// notifications are all available.
func (m *Manager) Supported() bool {
	return m.cfg.Registrar != nil && m.cfg.PushManager != nil && m.cfg.Notifications != nil
}

// Subscribe asks for permission, registers the worker and returns the push
// subscription. An existing subscription is re-sent to the backend in case
// its copy was lost; otherwise a new one is created with the VAPID key and
// saved.
func (m *Manager) Subscribe(ctx context.Context) (*Subscription, error) {
	if !m.Supported() {
		return nil, ErrUnsupported
	}

	perm, err := m.cfg.Notifications.RequestPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: request permission: %w", err)
	}
	if perm != PermissionGranted {
		return nil, ErrPermissionDenied
	}

	if _, err := m.cfg.Registrar.Register(m.cfg.ScriptURL, m.cfg.Scope); err != nil {
		return nil, fmt.Errorf("push: register worker: %w", err)
	}

	sub, err := m.cfg.PushManager.Subscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: get subscription: %w", err)
	}
	if sub != nil {
		if err := m.save(ctx, *sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	key, err := DecodeVAPIDKey(m.cfg.VAPIDPublicKey)
	if err != nil {
		return nil, err
	}
	sub, err = m.cfg.PushManager.Subscribe(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("push: subscribe: %w", err)
	}
	if err := m.save(ctx, *sub); err != nil {
		return nil, err
	}
	m.log.Info(ctx, "push subscription created", observe.F("endpoint", sub.Endpoint))
	return sub, nil
}

// Unsubscribe cancels the browser subscription and then removes the backend
// record. A backend failure is logged and not returned since the browser
// side already stopped delivery. It reports whether a subscription existed.
func (m *Manager) Unsubscribe(ctx context.Context) (bool, error) {
	if !m.Supported() {
		return false, nil
	}

	sub, err := m.cfg.PushManager.Subscription(ctx)
	if err != nil {
		return false, fmt.Errorf("push: get subscription: %w", err)
	}
	if sub == nil {
		return false, nil
	}
	if _, err := m.cfg.PushManager.Unsubscribe(ctx, sub); err != nil {
		return false, fmt.Errorf("push: unsubscribe: %w", err)
	}

	if m.cfg.Backend != nil {
		if err := m.cfg.Backend.Delete(ctx, sub.Endpoint); err != nil {
			m.log.Warn(ctx, "push subscription backend delete failed",
				observe.F("endpoint", sub.Endpoint), observe.F("error", err.Error()))
		}
	}
	return true, nil
}

// Init registers the worker at startup and, when permission was granted in
// an earlier session, re-sends the existing subscription to the backend.
func (m *Manager) Init(ctx context.Context) error {
	if !m.Supported() {
		return nil
	}
	if _, err := m.cfg.Registrar.Register(m.cfg.ScriptURL, m.cfg.Scope); err != nil {
		return fmt.Errorf("push: register worker: %w", err)
	}
	if m.cfg.Notifications.Permission() != PermissionGranted {
		return nil
	}

	sub, err := m.cfg.PushManager.Subscription(ctx)
	if err != nil {
		return fmt.Errorf("push: get subscription: %w", err)
	}
	if sub == nil {
		return nil
	}
	return m.save(ctx, *sub)
}

func (m *Manager) save(ctx context.Context, sub Subscription) error {
	if m.cfg.Backend == nil {
		return nil
	}
	if err := m.cfg.Backend.Save(ctx, sub); err != nil {
		return fmt.Errorf("push: save subscription: %w", err)
	}
	return nil
}
