package models

// User is the slice of the user record the chat engine needs. ID is the internal
// PostgreSQL key.
type User struct {
	ID       int64  `json:"-"`
	PublicID string `json:"public_id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"` // thumbnail URL
}
