package dto

// TokenRequest exchanges a store API key for a signed access token
type TokenRequest struct {
	StoreID string `json:"store_id" validate:"required,uuid"`
	APIKey  string `json:"api_key" validate:"required,min=16,max=255"`
}

// TokenResponse carries the issued access token
type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	Permissions []string `json:"permissions"`
}
