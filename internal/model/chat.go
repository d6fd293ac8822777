package model

import "time"

// ChatMessage is one message of the owner/crew messaging channel.
type ChatMessage struct {
	ID             string    `json:"id" mapstructure:"id"`
	SenderName     string    `json:"senderName" mapstructure:"senderName"`
	SenderID       string    `json:"senderId" mapstructure:"senderId"`
	Role           string    `json:"role" mapstructure:"role"`
	Message        string    `json:"message" mapstructure:"message"`
	Timestamp      time.Time `json:"timestamp" mapstructure:"timestamp"`
	Unread         bool      `json:"unread" mapstructure:"unread"`
	ConversationID string    `json:"conversationId,omitempty" mapstructure:"conversationId"`

	SyncStatus SyncStatus     `json:"syncStatus,omitempty" mapstructure:"-"`
	Extra      map[string]any `json:"-" mapstructure:"-"`

	stampDefaulted bool
}

// ChatMessageFromRaw normalizes a server record into a ChatMessage.
func ChatMessageFromRaw(raw map[string]any, now time.Time) (ChatMessage, error) {
	res := ChatFields.Apply(raw, now)

	var m ChatMessage
	extra, err := decodeResult(res, &m)
	if err != nil {
		return ChatMessage{}, err
	}
	m.Extra = extra
	m.SyncStatus = SyncStatusSynced
	m.stampDefaulted = res.WasDefaulted("timestamp")
	return m, nil
}

func (m ChatMessage) EntityID() string      { return m.ID }
func (m ChatMessage) SyncState() SyncStatus { return m.SyncStatus }

func (m ChatMessage) WithSyncState(s SyncStatus) ChatMessage {
	m.SyncStatus = s
	return m
}

func (m ChatMessage) Inherit(prev ChatMessage) ChatMessage {
	if m.stampDefaulted && !prev.Timestamp.IsZero() {
		m.Timestamp = prev.Timestamp
	}
	m.stampDefaulted = false
	return m
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	type plain ChatMessage
	return marshalFlat(plain(m), m.Extra)
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type plain ChatMessage
	var p plain
	extra, err := unmarshalFlat(data, &p, ChatFields)
	if err != nil {
		return err
	}
	*m = ChatMessage(p)
	m.Extra = extra
	return nil
}
