package dto

type WebhookResponse struct {
	OK        bool   `json:"ok"`
	PaymentID string `json:"payment_id"`
	Outcome   string `json:"outcome"`
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}
