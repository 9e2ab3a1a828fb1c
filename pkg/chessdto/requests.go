package chessdto

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type AckResponse struct {
	OK      bool   `json:"ok"`
	Version uint64 `json:"version"`
	Phase   string `json:"phase"`
}
