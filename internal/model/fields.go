package model

import "github.com/nhle/crewsync/internal/normalize"

// Alias tables list, per canonical field, the server keys known to carry
// it. The API has changed naming conventions over time, so every variant
// seen in the wild stays here.

// JobFields maps job records onto Job. Jobs carry no timestamp, so
// nothing here is defaulted from the clock.
var JobFields = normalize.Table{
	{Name: "id", Aliases: []string{"_id", "job_id", "jobId"}, Kind: normalize.String},
	{Name: "title", Aliases: []string{"name", "job_title", "jobTitle"}, Kind: normalize.String},
	{Name: "description", Aliases: []string{"details", "desc", "notes"}, Kind: normalize.String},
	{
		Name:    "assignedEmployees",
		Aliases: []string{"assigned_employees", "employeeIds", "employee_ids", "assignees", "employees"},
		Kind:    normalize.StringList,
	},
}

// EmployeeFields maps employee records onto Employee. Status falls back
// to active; the work fields stay absent when the server omits them.
var EmployeeFields = normalize.Table{
	{Name: "id", Aliases: []string{"_id", "employee_id", "employeeId", "user_id"}, Kind: normalize.String},
	{Name: "name", Aliases: []string{"full_name", "fullName", "fullname", "user.name"}, Kind: normalize.String},
	{Name: "position", Aliases: []string{"job_title", "title", "role"}, Kind: normalize.String},
	{Name: "email", Aliases: []string{"email_address", "user.email"}, Kind: normalize.String},
	{Name: "phone", Aliases: []string{"phone_number", "phoneNumber", "mobile"}, Kind: normalize.String},
	{
		Name:    "status",
		Aliases: []string{"employment_status", "employmentStatus"},
		Kind:    normalize.Enum,
		Allowed: []string{EmployeeActive, EmployeeInactive},
		Default: EmployeeActive,
	},
	{
		Name:     "currentJob",
		Aliases:  []string{"current_job", "current_job_id", "currentJobId", "job.id"},
		Kind:     normalize.String,
		Optional: true,
	},
	{
		Name:     "weeklyHours",
		Aliases:  []string{"weekly_hours", "hours_this_week", "hoursThisWeek", "stats.weeklyHours"},
		Kind:     normalize.Float,
		Optional: true,
	},
	{Name: "location", Aliases: []string{"address", "site"}, Kind: normalize.String, Optional: true},
	{
		Name:     "avatar",
		Aliases:  []string{"avatar_url", "avatarUrl", "photo", "profile.avatar"},
		Kind:     normalize.String,
		Optional: true,
	},
}

// NotificationFields maps notification records onto Notification.
var NotificationFields = normalize.Table{
	{Name: "id", Aliases: []string{"_id", "notification_id", "notificationId"}, Kind: normalize.String},
	{
		Name:    "type",
		Aliases: []string{"kind", "level", "category"},
		Kind:    normalize.Enum,
		Allowed: []string{NotificationInfo, NotificationSuccess, NotificationWarning, NotificationAlert},
		Default: NotificationInfo,
	},
	{Name: "title", Aliases: []string{"subject", "heading"}, Kind: normalize.String},
	{Name: "message", Aliases: []string{"body", "content", "text"}, Kind: normalize.String},
	{Name: "timestamp", Aliases: []string{"created_at", "createdAt", "time", "date"}, Kind: normalize.Time},
	{Name: "read", Aliases: []string{"is_read", "isRead", "seen"}, Kind: normalize.Bool},
	{
		Name:    "priority",
		Aliases: []string{"importance", "severity"},
		Kind:    normalize.Enum,
		Allowed: []string{PriorityLow, PriorityMedium, PriorityHigh},
		Default: PriorityMedium,
	},
	{
		Name:     "userId",
		Aliases:  []string{"user_id", "recipient_id", "recipientId", "employee_id", "employeeId"},
		Kind:     normalize.String,
		Optional: true,
	},
}

// ChatFields maps chat message records onto ChatMessage. The timestamp
// defaults to the decode time when missing.
var ChatFields = normalize.Table{
	{Name: "id", Aliases: []string{"_id", "message_id", "messageId"}, Kind: normalize.String},
	{Name: "senderName", Aliases: []string{"sender_name", "sender.name", "from_name", "author", "username"}, Kind: normalize.String},
	{Name: "senderId", Aliases: []string{"sender_id", "sender.id", "from_id", "user_id", "userId"}, Kind: normalize.String},
	{Name: "role", Aliases: []string{"sender_role", "senderRole", "sender.role"}, Kind: normalize.String},
	{Name: "message", Aliases: []string{"body", "content", "text"}, Kind: normalize.String},
	{Name: "timestamp", Aliases: []string{"created_at", "createdAt", "sent_at", "sentAt", "time"}, Kind: normalize.Time},
	{Name: "unread", Aliases: []string{"is_unread", "isUnread"}, Kind: normalize.Bool},
	{
		Name:     "conversationId",
		Aliases:  []string{"conversation_id", "thread_id", "threadId", "room_id", "roomId"},
		Kind:     normalize.String,
		Optional: true,
	},
}

// UserFields maps the signed-in user record returned by the auth
// endpoints onto User.
var UserFields = normalize.Table{
	{Name: "id", Aliases: []string{"_id", "user_id", "userId"}, Kind: normalize.String},
	{Name: "name", Aliases: []string{"full_name", "fullName", "username"}, Kind: normalize.String},
	{Name: "email", Aliases: []string{"email_address"}, Kind: normalize.String},
	{
		Name:    "role",
		Aliases: []string{"user_type", "userType", "type"},
		Kind:    normalize.Enum,
		Allowed: []string{RoleOwner, RoleEmployee},
		Default: RoleEmployee,
	},
}
