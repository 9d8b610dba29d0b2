package navigation

import (
	"time"

	"github.com/mrsinham/dicomhang/internal/protocol"
	"github.com/mrsinham/dicomhang/internal/session"
)

type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

const notificationDuration = 3000 * time.Millisecond

// Notification is a user facing message.
type Notification struct {
	Title    string
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// Notifier shows notifications to the user.
type Notifier interface {
	Show(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Show(n Notification) { f(n) }

// Affordances is kept in step with the applied protocol, for example to
// enable the tool groups a protocol declares.
type Affordances interface {
	Sync(info session.HPInfo, p *protocol.Protocol)
}

type discardNotifier struct{}

func (discardNotifier) Show(Notification) {}
