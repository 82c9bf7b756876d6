package auth

// TokenPair is the credential set returned by every successful issuance.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthResponse is the issuance envelope. ActionRequired is set for suspended
// accounts, which still receive tokens but must be routed to the restricted
// support flow.
type AuthResponse struct {
	TokenPair
	UserID            int64  `json:"user_id"`
	Role              string `json:"role"`
	Anonymous         bool   `json:"anonymous,omitempty"`
	AppAttestVerified bool   `json:"app_attest_verified,omitempty"`
	ActionRequired    string `json:"action_required,omitempty"`
	RedirectTo        string `json:"redirect_to,omitempty"`
}

// OTPSentResponse acknowledges that a passcode flow was started. The wording
// is identical whether or not the identifier exists.
type OTPSentResponse struct {
	Message string `json:"message"`
}

type initRequest struct {
	Capability        string `json:"capability"`
	KeyID             string `json:"key_id"`
	AttestationObject string `json:"attestation_object"`
	ClientDataHash    string `json:"client_data_hash"`
	Challenge         string `json:"challenge"`
}

type signupRequest struct {
	Email       string `json:"email"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
}

type signupVerifyRequest struct {
	Email       string `json:"email"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	Device      string `json:"device"`
}

type loginRequest struct {
	Email       string `json:"email"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	IsOtpLogin  bool   `json:"is_otp_login"`
	Device      string `json:"device"`
}

type loginVerifyRequest struct {
	Email       string `json:"email"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
	Device      string `json:"device"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email       string `json:"email"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
}

type forgotPasswordVerifyRequest struct {
	Email       string `json:"email"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

type socialRequest struct {
	ProviderToken string `json:"provider_token"`
	Device        string `json:"device"`
}

type validateResponse struct {
	UserID    int64  `json:"user_id"`
	Role      string `json:"role"`
	Anonymous bool   `json:"anonymous"`
}
