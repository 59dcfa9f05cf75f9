package domain

import "time"

// ShareRecord is a resume share link. Read-only from the comment path.
type ShareRecord struct {
	ID         string     `json:"id"`
	Token      string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CanComment bool       `json:"can_comment"`
}

type Comment struct {
	ID         string    `json:"id"`
	ShareID    string    `json:"share_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
