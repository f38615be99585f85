package model

import "time"

const DefaultTimezone = "UTC"

// User is a chat participant known to the session store. Timezone is kept for
// display only; the daily reset uses one global reference timezone.
type User struct {
	ID         string    `json:"id"`
	PlatformID int64     `json:"platformId"`
	Username   string    `json:"username,omitempty"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName,omitempty"`
	Timezone   string    `json:"timezone"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Participant identifies who a timer belongs to and where its notices go.
type Participant struct {
	PlatformID int64
	ChatID     int64
	Username   string
	FirstName  string
	LastName   string
}
