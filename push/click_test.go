package push

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

type fakeWindow struct {
	url        string
	focused    bool
	navigated  string
	focusError error
}

func (w *fakeWindow) URL() string { return w.url }

func (w *fakeWindow) Focus(context.Context) error {
	w.focused = true
	return w.focusError
}

func (w *fakeWindow) Navigate(_ context.Context, u string) error {
	w.navigated = u
	return nil
}

type fakeClients struct {
	windows []*fakeWindow
	opened  []string
}

func (c *fakeClients) Windows(context.Context) ([]WindowClient, error) {
	out := make([]WindowClient, len(c.windows))
	for i, w := range c.windows {
		out[i] = w
	}
	return out, nil
}

func (c *fakeClients) OpenWindow(_ context.Context, u string) error {
	c.opened = append(c.opened, u)
	return nil
}

type fakeDisplay struct {
	shown []Notification
}

func (d *fakeDisplay) ShowNotification(_ context.Context, n Notification) error {
	d.shown = append(d.shown, n)
	return nil
}

var testOrigin = &url.URL{Scheme: "https", Host: "app.traf3li.com"}

func clickOn(path, action string) (ClickEvent, *int) {
	closed := 0
	n := BuildNotification(Payload{URL: path})
	return ClickEvent{Notification: n, Action: action, Close: func() { closed++ }}, &closed
}

func TestHandleClick_Dismiss(t *testing.T) {
	clients := &fakeClients{windows: []*fakeWindow{{url: "https://app.traf3li.com/"}}}
	ev, closed := clickOn("/cases/1", ActionDismiss)

	if err := HandleClick(context.Background(), testOrigin, clients, ev); err != nil {
		t.Fatalf("HandleClick() error = %v", err)
	}
	if *closed != 1 {
		t.Errorf("closed = %d, want 1", *closed)
	}
	if clients.windows[0].focused || len(clients.opened) != 0 {
		t.Error("dismiss should not touch windows")
	}
}

func TestHandleClick_FocusesSameOriginWindow(t *testing.T) {
	other := &fakeWindow{url: "https://example.com/"}
	mine := &fakeWindow{url: "https://app.traf3li.com/dashboard"}
	clients := &fakeClients{windows: []*fakeWindow{other, mine}}

	for _, action := range []string{"", ActionView} {
		ev, closed := clickOn("/cases/1?tab=hearings", action)
		if err := HandleClick(context.Background(), testOrigin, clients, ev); err != nil {
			t.Fatalf("HandleClick(%q) error = %v", action, err)
		}
		if *closed != 1 {
			t.Errorf("closed = %d, want 1", *closed)
		}
	}

	if other.focused {
		t.Error("focused a window of another origin")
	}
	if !mine.focused || mine.navigated != "https://app.traf3li.com/cases/1?tab=hearings" {
		t.Errorf("window focused=%v navigated=%q", mine.focused, mine.navigated)
	}
	if len(clients.opened) != 0 {
		t.Errorf("opened = %v", clients.opened)
	}
}

func TestHandleClick_OpensWindowWhenNoneMatch(t *testing.T) {
	clients := &fakeClients{windows: []*fakeWindow{{url: "http://app.traf3li.com/"}}}
	ev, _ := clickOn("/invoices/9", ActionView)

	if err := HandleClick(context.Background(), testOrigin, clients, ev); err != nil {
		t.Fatalf("HandleClick() error = %v", err)
	}
	if len(clients.opened) != 1 || clients.opened[0] != "https://app.traf3li.com/invoices/9" {
		t.Errorf("opened = %v", clients.opened)
	}
}

func TestHandleClick_FocusError(t *testing.T) {
	boom := errors.New("boom")
	clients := &fakeClients{windows: []*fakeWindow{{url: "https://app.traf3li.com/", focusError: boom}}}
	ev, closed := clickOn("/", ActionView)

	if err := HandleClick(context.Background(), testOrigin, clients, ev); !errors.Is(err, boom) {
		t.Fatalf("HandleClick() error = %v, want %v", err, boom)
	}
	if *closed != 1 {
		t.Error("notification not closed")
	}
}

func TestHandlePush_PlainText(t *testing.T) {
	d := &fakeDisplay{}
	n, err := HandlePush(context.Background(), d, []byte("not json"))
	if err != nil {
		t.Fatalf("HandlePush() error = %v", err)
	}
	if len(d.shown) != 1 || d.shown[0].Body != "not json" || n.Title != DefaultTitle {
		t.Errorf("shown = %+v", d.shown)
	}
}
