package models

import "time"

// Account is a connected social account, owned by the account-storage
// collaborator and referenced here by id.
type Account struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"displayName"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
