package events

import "time"

// TopicQuotaRejected carries an event for every request rejected for exhausted quota.
const TopicQuotaRejected = "quota.rejected"

// RejectedEvent represents a request that was refused with 429.
type RejectedEvent struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	ClientIP     string    `json:"clientIp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Limit        uint64    `json:"limit"`
	ResetSeconds int       `json:"resetSeconds"`
	RejectedAt   time.Time `json:"rejectedAt"`
}
