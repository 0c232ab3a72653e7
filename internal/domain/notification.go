package domain

import "time"

// Channel identifies a delivery gateway.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelInApp   Channel = "in_app"
	ChannelWebhook Channel = "webhook"
)

// NotificationKind selects a template.
type NotificationKind string

const (
	KindUpdate         NotificationKind = "ccnl_update"
	KindRenewal        NotificationKind = "ccnl_renewal"
	KindSalaryIncrease NotificationKind = "salary_increase"
	KindExpiryWarning  NotificationKind = "expiry_warning"
)

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is rendered, dispatched and then discarded.
type Notification struct {
	TemplateID NotificationKind
	Title      string
	Message    string
	Priority   Priority
	Channels   []Channel
	Recipients []string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// ChannelResult reports what one gateway delivered.
type ChannelResult struct {
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
	Error  string `json:"error,omitempty"`
}

// DeliverySummary aggregates per-channel delivery outcomes.
type DeliverySummary struct {
	Sent        int                       `json:"sent"`
	Failed      int                       `json:"failed"`
	SuccessRate float64                   `json:"success_rate"`
	Channels    map[Channel]ChannelResult `json:"channels"`
}
