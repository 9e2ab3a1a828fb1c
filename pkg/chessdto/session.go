package chessdto

type Clocks struct {
	WhiteMS int64  `json:"white_ms"`
	BlackMS int64  `json:"black_ms"`
	Running string `json:"running,omitempty"`
	White   string `json:"white"`
	Black   string `json:"black"`
}

type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// SessionView is the external JSON shape of one session snapshot.
type SessionView struct {
	ClientID    string   `json:"client_id,omitempty"`
	Version     uint64   `json:"version"`
	Phase       string   `json:"phase"`
	MatchID     string   `json:"match_id,omitempty"`
	LocalColor  string   `json:"local_color,omitempty"`
	Turn        string   `json:"turn"`
	MyTurn      bool     `json:"my_turn"`
	FEN         string   `json:"fen"`
	Moves       []Move   `json:"moves"`
	MovesUCI    []string `json:"moves_uci"`
	Clocks      Clocks   `json:"clocks"`
	Pending     *Move    `json:"pending,omitempty"`
	Outcome     string   `json:"outcome,omitempty"`
	OutcomeMeta string   `json:"outcome_method,omitempty"`
	Result      string   `json:"result,omitempty"`
}
