package requests

// ChatMessageRequest is the payload for one chat turn.
type ChatMessageRequest struct {
	Message      string `json:"message"`
	SessionID    string `json:"sessionId"`
	CustomerID   string `json:"customerId"`
	CustomerName string `json:"customerName"`
	Referral     string `json:"referralSource"`
}

// ResetRequest restarts a conversation session.
type ResetRequest struct {
	SessionID string `json:"sessionId"`
	ResetType string `json:"resetType"` // soft or hard
}
