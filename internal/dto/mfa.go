package dto

type MFASetupResponse struct {
	Secret     string `json:"secret"`
	OtpauthURL string `json:"otpauthUrl"`
}

type MFAEnableRequest struct {
	Code string `json:"code"`
}
