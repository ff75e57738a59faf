package dto

// SeedActivityRequest carries raw activity documents. Each document needs an id and a type;
// every other field is stored as written.
type SeedActivityRequest struct {
	Items []map[string]interface{} `json:"items"`
}

// SeedUserRequest describes one user profile to upsert.
type SeedUserRequest struct {
	UID            string                 `json:"uid" validate:"required,max=128"`
	Name           string                 `json:"name" validate:"omitempty,max=255"`
	Email          string                 `json:"email" validate:"omitempty,email"`
	Role           string                 `json:"role" validate:"required,oneof=admin staff member"`
	Permissions    map[string]interface{} `json:"permissions"`
	CanVerifyUsers *bool                  `json:"canVerifyUsers,omitempty"`
}

// SeedUsersRequest wraps a batch of user profiles.
type SeedUsersRequest struct {
	Items []SeedUserRequest `json:"items" validate:"dive"`
}

// SeedResponse reports how many rows a seed call touched.
type SeedResponse struct {
	Affected int64 `json:"affected"`
}
