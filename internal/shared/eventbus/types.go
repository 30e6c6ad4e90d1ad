// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// EnrolmentEventType 选课事件类型
type EnrolmentEventType string

const (
	EnrolmentCreated   EnrolmentEventType = "enrolment.created"
	EnrolmentCompleted EnrolmentEventType = "enrolment.completed"
	EnrolmentDeleted   EnrolmentEventType = "enrolment.deleted"
)

// EnrolmentEvent 选课事件
type EnrolmentEvent struct {
	Type        EnrolmentEventType `json:"type"`
	EnrolmentID string             `json:"enrolment_id"`
	UserID      string             `json:"user_id,omitempty"`
	ModuleID    string             `json:"module_id,omitempty"`
	Result      string             `json:"result,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// ChannelEnrolmentEvents Redis Pub/Sub 频道
	ChannelEnrolmentEvents = "nayaschool:enrolment-events"

	// SubscriberBuffer 订阅者缓冲区大小，满时丢弃新事件
	SubscriberBuffer = 64
)
