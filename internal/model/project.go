package model

import "time"

// Project is the hydrated view of a project returned to clients.
type Project struct {
	ID          string        `json:"_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	AdminID     string        `json:"admin"`
	Members     []*Member     `json:"users"`
	Queue       []*QueueEntry `json:"queue"`
	Backlog     []*Task       `json:"backlog"`
	Iterations  []*Iteration  `json:"iterations"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ProjectSummary is the project list entry.
type ProjectSummary struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProjectInfo is returned after a project update.
type ProjectInfo struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Member struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// QueueEntry is a pending join request.
type QueueEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// HasMember reports whether userID is a member of p.
func (p *Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// HasQueued reports whether userID has a pending join request in p.
func (p *Project) HasQueued(userID string) bool {
	for _, q := range p.Queue {
		if q.UserID == userID {
			return true
		}
	}
	return false
}
