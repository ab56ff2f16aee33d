package moment

import (
	"context"
	"time"
)

// Moment is a social post fanned out to the author's followers. Type is an
// application-defined code (video posted, live started, ...).
type Moment struct {
	ID         int64     `json:"id,omitempty"`
	UserID     int64     `json:"userId"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	CreateTime time.Time `json:"createTime"`
}

// FollowerGraph is the social-graph collaborator: who follows a principal.
type FollowerGraph interface {
	GetFollowers(ctx context.Context, userID int64) ([]int64, error)
}
