package push

import (
	"encoding/json"
	"strings"
)

// Notification defaults used for any field a payload leaves out.
const (
	DefaultTitle = "ترافلي"
	DefaultBody  = "لديك إشعار جديد"
	DefaultIcon  = "/images/icon-192.png"
	DefaultBadge = "/images/badge-72.png"
	DefaultTag   = "traf3li-notification"
	DefaultURL   = "/"
)

// Payload is the content of a push message.
type Payload struct {
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// wirePayload accepts the alternate field names senders use.
type wirePayload struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Message string         `json:"message"`
	Icon    string         `json:"icon"`
	Badge   string         `json:"badge"`
	Tag     string         `json:"tag"`
	Type    string         `json:"type"`
	URL     string         `json:"url"`
	Link    string         `json:"link"`
	Data    map[string]any `json:"data"`
}

// DefaultPayload returns the defaults every notification starts from.
func DefaultPayload() Payload {
	return Payload{
		Title: DefaultTitle,
		Body:  DefaultBody,
		Icon:  DefaultIcon,
		Badge: DefaultBadge,
		Tag:   DefaultTag,
		URL:   DefaultURL,
	}
}

// ParsePayload merges a push message over the defaults. A message that is
// not a JSON object becomes the body as plain text.
func ParsePayload(data []byte) Payload {
	p := DefaultPayload()

	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		if text := strings.TrimSpace(string(data)); text != "" {
			p.Body = text
		}
		return p
	}

	p.Title = firstNonEmpty(w.Title, p.Title)
	p.Body = firstNonEmpty(w.Body, w.Message, p.Body)
	p.Icon = firstNonEmpty(w.Icon, p.Icon)
	p.Badge = firstNonEmpty(w.Badge, p.Badge)
	p.Tag = firstNonEmpty(w.Tag, w.Type, p.Tag)
	p.URL = firstNonEmpty(w.URL, w.Link, p.URL)
	p.Data = w.Data
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Notification actions.
const (
	ActionView    = "view"
	ActionDismiss = "dismiss"
)

// Action is a button on a notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is what the worker displays.
type Notification struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Tag                string         `json:"tag"`
	Data               map[string]any `json:"data"`
	Actions            []Action       `json:"actions"`
	RequireInteraction bool           `json:"requireInteraction"`
}

// URL returns the deep link carried by the notification.
func (n Notification) URL() string {
	if u, ok := n.Data["url"].(string); ok && u != "" {
		return u
	}
	return DefaultURL
}

// BuildNotification turns a payload into a notification with view and
// dismiss actions that stays until the user acts on it.
func BuildNotification(p Payload) Notification {
	data := make(map[string]any, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	data["url"] = p.URL

	return Notification{
		Title: p.Title,
		Body:  p.Body,
		Icon:  p.Icon,
		Badge: p.Badge,
		Tag:   p.Tag,
		Data:  data,
		Actions: []Action{
			{Action: ActionView, Title: "عرض"},
			{Action: ActionDismiss, Title: "إغلاق"},
		},
		RequireInteraction: true,
	}
}
