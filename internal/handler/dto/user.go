package dto

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

// RegisterResponse confirms a registration without echoing credentials.
type RegisterResponse struct {
	Message string `json:"message"`
}

// TokenRequest represents the request body for obtaining a token pair.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest represents the request body for rotating a refresh token.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// TokenResponse carries a freshly issued token pair.
type TokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
