package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/session"
)

// Storage keys of the collections.
const (
	JobsKey          = "crew.jobs"
	EmployeesKey     = "crew.employees"
	NotificationsKey = "crew.notifications"
	ChatKey          = "crew.chat"
)

// Jobs is the job board.
type Jobs struct {
	*Container[model.Job]
	notifications *Notifications
}

// NewJobs builds the jobs container. New jobs notify their assignees
// through notifications.
func NewJobs(ctx context.Context, cfg Config[model.Job], notifications *Notifications) (*Jobs, error) {
	if cfg.Name == "" {
		cfg.Name = "jobs"
	}
	if cfg.Decode == nil {
		cfg.Decode = model.JobFromRaw
	}
	if cfg.Seed == nil {
		cfg.Seed = model.DefaultJobs
	}
	c, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Jobs{Container: c, notifications: notifications}, nil
}

// Add creates a job, generating its ID when missing, and queues one
// assignment notification per assignee.
func (j *Jobs) Add(job model.Job) (model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.AssignedEmployees = dedupe(job.AssignedEmployees)

	added, err := j.Container.Add(job)
	if err != nil {
		return added, err
	}

	if j.notifications == nil {
		return added, nil
	}
	for _, employeeID := range added.AssignedEmployees {
		_, err := j.notifications.Add(model.Notification{
			Type:     model.NotificationInfo,
			Title:    "New job assignment",
			Message:  fmt.Sprintf("You have been assigned to %q.", added.Title),
			Priority: model.PriorityMedium,
			UserID:   employeeID,
		})
		if err != nil {
			j.logger.Error(context.Background(), "queueing assignment notification",
				"job", added.ID, "employee", employeeID, "err", err)
		}
	}
	return added, nil
}

// ForEmployee returns the jobs assigned to employeeID.
func (j *Jobs) ForEmployee(employeeID string) []model.Job {
	var out []model.Job
	for _, job := range j.Items() {
		if job.IsAssigned(employeeID) {
			out = append(out, job)
		}
	}
	return out
}

// Employees is the crew roster.
type Employees struct {
	*Container[model.Employee]
}

// NewEmployees builds the employees container.
func NewEmployees(ctx context.Context, cfg Config[model.Employee]) (*Employees, error) {
	if cfg.Name == "" {
		cfg.Name = "employees"
	}
	if cfg.Decode == nil {
		cfg.Decode = model.EmployeeFromRaw
	}
	c, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Employees{Container: c}, nil
}

// Add creates an employee, generating its ID when missing.
func (e *Employees) Add(emp model.Employee) (model.Employee, error) {
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	if emp.Status == "" {
		emp.Status = model.EmployeeActive
	}
	return e.Container.Add(emp)
}

// Active returns the employees whose status is active.
func (e *Employees) Active() []model.Employee {
	var out []model.Employee
	for _, emp := range e.Items() {
		if emp.IsActive() {
			out = append(out, emp)
		}
	}
	return out
}

// Notifications holds alerts for the signed-in user and broadcasts.
type Notifications struct {
	*Container[model.Notification]
}

// NewNotifications builds the notifications container.
func NewNotifications(ctx context.Context, cfg Config[model.Notification]) (*Notifications, error) {
	if cfg.Name == "" {
		cfg.Name = "notifications"
	}
	if cfg.Decode == nil {
		cfg.Decode = model.NotificationFromRaw
	}
	c, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Notifications{Container: c}, nil
}

// Add queues a notification, filling the ID, timestamp, type and
// priority when missing.
func (n *Notifications) Add(notif model.Notification) (model.Notification, error) {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.Timestamp.IsZero() {
		notif.Timestamp = n.now().UTC()
	}
	if notif.Type == "" {
		notif.Type = model.NotificationInfo
	}
	if notif.Priority == "" {
		notif.Priority = model.PriorityMedium
	}
	return n.Container.Add(notif)
}

// For returns the notifications addressed to userID plus broadcasts,
// newest first.
func (n *Notifications) For(userID string) []model.Notification {
	var out []model.Notification
	for _, notif := range n.Items() {
		if notif.IsFor(userID) {
			out = append(out, notif)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Timestamp.After(out[k].Timestamp)
	})
	return out
}

// UnreadCount counts the unread notifications For returns.
func (n *Notifications) UnreadCount(userID string) int {
	count := 0
	for _, notif := range n.For(userID) {
		if !notif.Read {
			count++
		}
	}
	return count
}

// MarkRead marks one notification read.
func (n *Notifications) MarkRead(id string) error {
	notif, ok := n.Get(id)
	if !ok {
		return fmt.Errorf("marking notification %q read: %w", id, ErrNotFound)
	}
	if notif.Read {
		return nil
	}
	notif.Read = true
	_, err := n.Update(notif)
	return err
}

// MarkAllRead marks every unread notification of userID read.
func (n *Notifications) MarkAllRead(userID string) error {
	for _, notif := range n.For(userID) {
		if notif.Read {
			continue
		}
		if err := n.MarkRead(notif.ID); err != nil {
			return err
		}
	}
	return nil
}

// Chat holds the messages of the signed-in user's conversations.
type Chat struct {
	*Container[model.ChatMessage]
}

// NewChat builds the chat container.
func NewChat(ctx context.Context, cfg Config[model.ChatMessage]) (*Chat, error) {
	if cfg.Name == "" {
		cfg.Name = "chat"
	}
	if cfg.Decode == nil {
		cfg.Decode = model.ChatMessageFromRaw
	}
	c, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Chat{Container: c}, nil
}

// Send posts body to the default conversation as the signed-in user.
func (c *Chat) Send(body string) (model.ChatMessage, error) {
	return c.SendTo("", body)
}

// SendTo posts body to conversationID as the signed-in user.
func (c *Chat) SendTo(conversationID, body string) (model.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.ChatMessage{}, errors.New("sending message: empty body")
	}

	user := c.gate.State().User
	if user == nil {
		return model.ChatMessage{}, fmt.Errorf("sending message: %w", session.ErrNotAuthenticated)
	}

	return c.Add(model.ChatMessage{
		ID:             uuid.NewString(),
		SenderName:     user.Name,
		SenderID:       user.ID,
		Role:           user.Role,
		Message:        body,
		Timestamp:      c.now().UTC(),
		ConversationID: conversationID,
	})
}

// Conversation returns the messages of conversationID, oldest first. The
// empty ID is the default conversation.
func (c *Chat) Conversation(conversationID string) []model.ChatMessage {
	var out []model.ChatMessage
	for _, msg := range c.Items() {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Timestamp.Before(out[k].Timestamp)
	})
	return out
}

// UnreadCount counts unread messages sent by others.
func (c *Chat) UnreadCount() int {
	self := c.gate.State().UserID()
	count := 0
	for _, msg := range c.Items() {
		if msg.Unread && msg.SenderID != self {
			count++
		}
	}
	return count
}

// MarkRead marks the messages of conversationID sent by others read.
func (c *Chat) MarkRead(conversationID string) error {
	self := c.gate.State().UserID()
	for _, msg := range c.Conversation(conversationID) {
		if !msg.Unread || msg.SenderID == self {
			continue
		}
		msg.Unread = false
		if _, err := c.Update(msg); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
