package model

// AdminLoginRequest is the payload for admin login.
type AdminLoginRequest struct {
	Secret string `json:"secret" binding:"required,max=128"`
}

// AdminLoginResponse is returned after successful admin login.
type AdminLoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}
