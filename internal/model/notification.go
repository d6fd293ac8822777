package model

import "time"

// Notification types.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationAlert   = "alert"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification is an alert surfaced to one user, or to everyone when
// UserID is empty.
type Notification struct {
	ID        string    `json:"id" mapstructure:"id"`
	Type      string    `json:"type" mapstructure:"type"`
	Title     string    `json:"title" mapstructure:"title"`
	Message   string    `json:"message" mapstructure:"message"`
	Timestamp time.Time `json:"timestamp" mapstructure:"timestamp"`
	Read      bool      `json:"read" mapstructure:"read"`
	Priority  string    `json:"priority" mapstructure:"priority"`
	UserID    string    `json:"userId,omitempty" mapstructure:"userId"`

	SyncStatus SyncStatus     `json:"syncStatus,omitempty" mapstructure:"-"`
	Extra      map[string]any `json:"-" mapstructure:"-"`

	// stampDefaulted is set when the server sent no timestamp.
	stampDefaulted bool
}

// NotificationFromRaw normalizes a server record into a Notification.
func NotificationFromRaw(raw map[string]any, now time.Time) (Notification, error) {
	res := NotificationFields.Apply(raw, now)

	var n Notification
	extra, err := decodeResult(res, &n)
	if err != nil {
		return Notification{}, err
	}
	n.Extra = extra
	n.SyncStatus = SyncStatusSynced
	n.stampDefaulted = res.WasDefaulted("timestamp")
	return n, nil
}

func (n Notification) EntityID() string      { return n.ID }
func (n Notification) SyncState() SyncStatus { return n.SyncStatus }

func (n Notification) WithSyncState(s SyncStatus) Notification {
	n.SyncStatus = s
	return n
}

// Inherit keeps prev's timestamp when the server omitted one, so a
// record without a timestamp does not look new on every poll.
func (n Notification) Inherit(prev Notification) Notification {
	if n.stampDefaulted && !prev.Timestamp.IsZero() {
		n.Timestamp = prev.Timestamp
	}
	n.stampDefaulted = false
	return n
}

// IsFor reports whether the notification targets userID. Broadcast
// notifications target everyone.
func (n Notification) IsFor(userID string) bool {
	return n.UserID == "" || n.UserID == userID
}

func (n Notification) MarshalJSON() ([]byte, error) {
	type plain Notification
	return marshalFlat(plain(n), n.Extra)
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	var p plain
	extra, err := unmarshalFlat(data, &p, NotificationFields)
	if err != nil {
		return err
	}
	*n = Notification(p)
	n.Extra = extra
	return nil
}
