package domain

import "time"

type Message struct {
	ID         DocumentID `json:"id"`
	AuthorName string     `json:"name"`
	Body       string     `json:"message"`
	SentAt     time.Time  `json:"timestamp"`
	System     bool       `json:"system,omitempty"`
}
