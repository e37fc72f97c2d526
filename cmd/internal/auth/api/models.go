package authapi

import "time"

type requestMagicLinkRequest struct {
	Email string `json:"email"`
}

type submitMagicLinkRequest struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type tokenResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Email          string `json:"email,omitempty"`
	LivestoreToken string `json:"livestoreToken"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type meResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
	Stores  []string     `json:"stores"`
}
