package offlineagent

import "strings"

// Notification formatting for push payloads. This is glue around the cache
// core: the display layer consumes the JSON shape produced here.

const (
	notificationTitle   = "Offline Agent"
	notificationDefault = "You have a new notification."
)

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type Notification struct {
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Actions []NotificationAction `json:"actions"`
	// Path focused or opened when the open action is clicked.
	TargetPath string `json:"targetPath"`
}

// BuildNotification formats a push payload into a user notification with a
// fixed title, the payload text as body, and open/dismiss actions. The open
// action targets the application root.
func BuildNotification(payload []byte) Notification {
	body := strings.TrimSpace(string(payload))
	if body == "" {
		body = notificationDefault
	}
	return Notification{
		Title: notificationTitle,
		Body:  body,
		Actions: []NotificationAction{
			{Action: "open", Title: "Open app"},
			{Action: "dismiss", Title: "Dismiss"},
		},
		TargetPath: "/",
	}
}
