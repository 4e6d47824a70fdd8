package models

// Person represents a team member record in the task store
type Person struct {
	ID       string `json:"id"`
	Username string `json:"username"` // chat username as stored, may carry a leading "@"
}
