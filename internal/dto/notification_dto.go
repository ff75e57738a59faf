package dto

import (
	"time"

	"github.com/noah-isme/portal-notify-api/internal/activity"
)

// FeedQuery represents the query accepted by the feed endpoint.
type FeedQuery struct {
	Tab string `query:"tab" validate:"omitempty,oneof=all unread"`
}

// FeedResponse is the rendered notification feed of one viewer.
type FeedResponse struct {
	Tab         string          `json:"tab"`
	Items       []activity.Item `json:"items"`
	UnreadCount int             `json:"unread_count"`
	Version     uint64          `json:"version"`
	Notice      string          `json:"notice,omitempty"`
}

// UnreadCountResponse carries the badge value.
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// OpenResponse tells the client where a clicked notification leads.
type OpenResponse struct {
	ID     string `json:"id"`
	Target string `json:"target"`
}

// VerifyResponse describes a registration after the verify action.
type VerifyResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Solved           bool      `json:"solved"`
	VerifiedBy       string    `json:"verified_by"`
	VerificationDate time.Time `json:"verification_date"`
}

// Stream event names.
const (
	StreamEventFeed   = "feed"
	StreamEventNotice = "notice"
)

// FeedStreamEvent is one message pushed to SSE and websocket clients.
type FeedStreamEvent struct {
	Event  string        `json:"event"`
	Feed   *FeedResponse `json:"feed,omitempty"`
	Notice string        `json:"notice,omitempty"`
}

// RecentActivityQuery represents the dashboard widget query.
type RecentActivityQuery struct {
	Limit int  `query:"limit" validate:"omitempty,min=1,max=50"`
	All   bool `query:"all"`
}

// RecentActivityResponse is the dashboard "recent activity" widget payload.
type RecentActivityResponse struct {
	Items   []activity.RecentEntry `json:"items"`
	HasMore bool                   `json:"has_more"`
}

// FeedStatusResponse describes the aggregator state for operators.
type FeedStatusResponse struct {
	Version  uint64    `json:"version"`
	Records  int       `json:"records"`
	LoadedAt time.Time `json:"loaded_at"`
	Degraded bool      `json:"degraded"`
}
