package models

import "time"

type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Alarm is a user price alarm. Once IsTriggered is set it stays set.
type Alarm struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"deviceId"`
	PushToken   string     `json:"pushToken,omitempty"`
	ProductCode string     `json:"productCode"`
	Side        Side       `json:"side"`
	Condition   Condition  `json:"condition"`
	TargetPrice float64    `json:"targetPrice"`
	IsTriggered bool       `json:"isTriggered"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	IsActive    bool       `json:"isActive"`
}

// Satisfied reports whether price meets the alarm condition.
func (a Alarm) Satisfied(price float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return price >= a.TargetPrice
	case ConditionBelow:
		return price <= a.TargetPrice
	}
	return false
}

// AlarmFiredEvent is sent to realtime clients and the event bus.
type AlarmFiredEvent struct {
	AlarmID      string    `json:"alarmId"`
	DeviceID     string    `json:"deviceId"`
	ProductCode  string    `json:"productCode"`
	Message      string    `json:"message"`
	CurrentPrice float64   `json:"currentPrice"`
	TargetPrice  float64   `json:"targetPrice"`
	TriggeredAt  time.Time `json:"triggeredAt"`
}

// Notification is a device push message.
type Notification struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// SnapshotMeta and SnapshotEvent form the outbound price update.
type SnapshotMeta struct {
	Time time.Time `json:"time"`
}

type SnapshotEvent struct {
	Meta   SnapshotMeta `json:"meta"`
	Prices []Quote      `json:"prices"`
}
