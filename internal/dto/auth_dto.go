package dto

// LoginRequest carries the externally issued identity token to exchange for a
// portal session.
type LoginRequest struct {
	Token string `json:"token" validate:"required"`
}

// LoginResponse is the portal session handed back on a successful exchange.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	UserID      uint   `json:"user_id"`
}
