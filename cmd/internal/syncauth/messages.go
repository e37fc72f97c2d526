package syncauth

import "time"

// Message types of the sync handshake.
const (
	typeAuth        = "auth"
	typeAuthOK      = "auth.ok"
	typeAuthExpired = "auth.expired"
	typePing        = "ping"
	typePong        = "pong"
	typeError       = "error"
)

// clientMessage is any frame sent by a sync client.
type clientMessage struct {
	Type      string `json:"type"`
	AuthToken string `json:"authToken,omitempty"`
	StoreID   string `json:"storeId,omitempty"`
}

// serverMessage is any frame sent to a sync client.
type serverMessage struct {
	Type      string     `json:"type"`
	UserID    string     `json:"userId,omitempty"`
	StoreID   string     `json:"storeId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Code      string     `json:"code,omitempty"`
	Message   string     `json:"message,omitempty"`
}

type authorizeRequest struct {
	AuthToken string `json:"authToken"`
	StoreID   string `json:"storeId"`
}

type authorizeResponse struct {
	Success   bool      `json:"success"`
	UserID    string    `json:"userId"`
	StoreID   string    `json:"storeId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}
