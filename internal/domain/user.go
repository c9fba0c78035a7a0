package domain

import "time"

// User is the domain representation of an application user.
type User struct {
	ID      UserID
	Subject SubjectID

	DisplayName string
	Email       string

	CreatedAt time.Time
	UpdatedAt time.Time
}
