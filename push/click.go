package push

import (
	"context"
	"fmt"
	"net/url"
)

// Displayer shows notifications.
type Displayer interface {
	ShowNotification(ctx context.Context, n Notification) error
}

// HandlePush displays the notification for a push message.
func HandlePush(ctx context.Context, d Displayer, data []byte) (Notification, error) {
	n := BuildNotification(ParsePayload(data))
	if err := d.ShowNotification(ctx, n); err != nil {
		return n, fmt.Errorf("push: show notification: %w", err)
	}
	return n, nil
}

// WindowClient is an open page of the application.
type WindowClient interface {
	URL() string
	Focus(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
}

// Clients finds and opens application windows.
type Clients interface {
	Windows(ctx context.Context) ([]WindowClient, error)
	OpenWindow(ctx context.Context, url string) error
}

// ClickEvent is a click on a displayed notification.
type ClickEvent struct {
	Notification Notification
	Action       string

	// Close dismisses the notification.
	Close func()
}

// HandleClick closes the notification and, unless the dismiss action was
// chosen, focuses a same-origin window at the notification's URL or opens
// a new one.
func HandleClick(ctx context.Context, origin *url.URL, clients Clients, ev ClickEvent) error {
	if ev.Close != nil {
		ev.Close()
	}
	if ev.Action == ActionDismiss {
		return nil
	}

	ref, err := url.Parse(ev.Notification.URL())
	if err != nil {
		ref = &url.URL{Path: DefaultURL}
	}
	target := origin.ResolveReference(ref).String()

	windows, err := clients.Windows(ctx)
	if err != nil {
		return fmt.Errorf("push: list windows: %w", err)
	}
	for _, w := range windows {
		if !sameOrigin(origin, w.URL()) {
			continue
		}
		if err := w.Focus(ctx); err != nil {
			return fmt.Errorf("push: focus window: %w", err)
		}
		if err := w.Navigate(ctx, target); err != nil {
			return fmt.Errorf("push: navigate window: %w", err)
		}
		return nil
	}

	if err := clients.OpenWindow(ctx, target); err != nil {
		return fmt.Errorf("push: open window: %w", err)
	}
	return nil
}

func sameOrigin(origin *url.URL, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == origin.Scheme && u.Host == origin.Host
}
