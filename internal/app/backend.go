package app

import (
	"context"

	"github.com/nhle/crewsync/internal/model"
	appsync "github.com/nhle/crewsync/internal/sync"
	"github.com/nhle/crewsync/internal/ui/dashboard"
)

// Snapshot implements dashboard.Backend.
func (a *App) Snapshot() dashboard.Snapshot {
	st := a.session.State()
	return dashboard.Snapshot{
		User:          st.User,
		Jobs:          a.jobs.Items(),
		Employees:     a.employees.Items(),
		Notifications: a.notifications.For(st.UserID()),
		Chat:          a.chat.Conversation(""),
		UnreadChat:    a.chat.UnreadCount(),
		Statuses:      a.Statuses(),
	}
}

// Statuses reports every container in display order.
func (a *App) Statuses() []appsync.Status {
	cs := a.containers()
	out := make([]appsync.Status, len(cs))
	for i, c := range cs {
		out[i] = c.Status()
	}
	return out
}

// RefreshAll asks every container for an immediate poll.
func (a *App) RefreshAll() {
	for _, c := range a.containers() {
		c.Refresh()
	}
}

// RetryJob resends the failed change of a job.
func (a *App) RetryJob(ctx context.Context, id string) error {
	return a.jobs.Retry(ctx, id)
}

// DiscardJob drops the failed change of a job.
func (a *App) DiscardJob(id string) error {
	return a.jobs.Discard(id)
}

// MarkNotificationRead marks one notification read.
func (a *App) MarkNotificationRead(id string) error {
	return a.notifications.MarkRead(id)
}

// MarkChatRead marks the default conversation read.
func (a *App) MarkChatRead() error {
	return a.chat.MarkRead("")
}

// MarkAllNotificationsRead marks every notification of the signed-in user
// read.
func (a *App) MarkAllNotificationsRead() error {
	return a.notifications.MarkAllRead(a.session.State().UserID())
}

// AddJob creates a job and notifies its assignees.
func (a *App) AddJob(job model.Job) error {
	_, err := a.jobs.Add(job)
	return err
}

// UpdateJob saves an edited job.
func (a *App) UpdateJob(job model.Job) error {
	_, err := a.jobs.Update(job)
	return err
}

// DeleteJob removes a job.
func (a *App) DeleteJob(id string) error {
	return a.jobs.Delete(id)
}

// AddEmployee adds a crew member to the roster.
func (a *App) AddEmployee(emp model.Employee) error {
	_, err := a.employees.Add(emp)
	return err
}

// SendChat posts body to the default conversation.
func (a *App) SendChat(body string) error {
	_, err := a.chat.Send(body)
	return err
}
