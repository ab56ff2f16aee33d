package danmu

import "time"

// Danmu is one live comment. VideoID is the subject the comment targets;
// UserID is 0 for anonymous senders (guests can broadcast but their
// comments are not persisted).
type Danmu struct {
	ID         int64     `json:"id,omitempty"`
	VideoID    int64     `json:"videoId"`
	UserID     int64     `json:"userId,omitempty"`
	Content    string    `json:"content"`
	CreateTime time.Time `json:"createTime"`
}

// Frame is the broker wire shape for one targeted delivery: the raw client
// payload addressed to a single live session.
type Frame struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}
