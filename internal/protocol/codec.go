package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Move    json.RawMessage `json:"move,omitempty"`
}

type outFrame struct {
	Type    string `json:"type"`
	Move    *Move  `json:"move,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type startPayload struct {
	Color   string `json:"color"`
	MatchID string `json:"match_id,omitempty"`
	TimeMS  int64  `json:"time_ms,omitempty"`
}

type movePayload struct {
	Move
	Color string `json:"color,omitempty"`
}

type endPayload struct {
	Outcome string `json:"outcome,omitempty"`
	Winner  string `json:"winner,omitempty"`
}

// Decode parses one inbound frame. It never panics and never returns an
// error: anything it cannot understand comes back as KindMalformed with Err
// set, and the caller decides what to do with it.
func Decode(frame []byte) (ev Event) {
	defer func() {
		if r := recover(); r != nil {
			ev = malformed("", fmt.Errorf("%w: %v", ErrBadFrame, r))
		}
	}()

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return malformed("", fmt.Errorf("%w: %v", ErrBadFrame, err))
	}
	switch env.Type {
	case TypeInitGame:
		return decodeStart(env)
	case TypeMove:
		return decodeMove(env)
	case TypeGameOver:
		return decodeEnd(env)
	case "":
		return malformed("", fmt.Errorf("%w: missing type", ErrBadFrame))
	default:
		return malformed(env.Type, fmt.Errorf("%w: %q", ErrUnknownType, env.Type))
	}
}

func decodeStart(env envelope) Event {
	var p startPayload
	if err := unmarshalObject(env.Payload, &p); err != nil {
		return malformed(env.Type, err)
	}
	c, ok := ParseColor(p.Color)
	if !ok {
		return malformed(env.Type, fmt.Errorf("%w: color %q", ErrBadPayload, p.Color))
	}
	if p.TimeMS < 0 {
		return malformed(env.Type, fmt.Errorf("%w: negative time_ms", ErrBadPayload))
	}
	return Event{Kind: KindMatchStarted, Type: env.Type, Color: c, MatchID: p.MatchID, InitialMillis: p.TimeMS}
}

func decodeMove(env envelope) Event {
	raw := env.Payload
	if isNull(raw) {
		raw = env.Move
	}
	var p movePayload
	if err := unmarshalObject(raw, &p); err != nil {
		return malformed(env.Type, err)
	}
	if !ValidSquare(p.From) || !ValidSquare(p.To) {
		return malformed(env.Type, fmt.Errorf("%w: squares %q -> %q", ErrBadPayload, p.From, p.To))
	}
	if !validPromotion(p.Promotion) {
		return malformed(env.Type, fmt.Errorf("%w: promotion %q", ErrBadPayload, p.Promotion))
	}
	ev := Event{Kind: KindMoveConfirmed, Type: env.Type, Move: p.Move}
	if p.Color != "" {
		c, ok := ParseColor(p.Color)
		if !ok {
			return malformed(env.Type, fmt.Errorf("%w: color %q", ErrBadPayload, p.Color))
		}
		ev.Color = c
	}
	return ev
}

func decodeEnd(env envelope) Event {
	raw := bytes.TrimSpace(env.Payload)
	if len(raw) == 0 {
		return malformed(env.Type, fmt.Errorf("%w: missing outcome", ErrBadPayload))
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return malformed(env.Type, fmt.Errorf("%w: %v", ErrBadPayload, err))
		}
	} else {
		var p endPayload
		if err := unmarshalObject(raw, &p); err != nil {
			return malformed(env.Type, err)
		}
		text = p.Outcome
		if text == "" {
			text = p.Winner
		}
	}
	o, ok := ParseOutcome(text)
	if !ok {
		return malformed(env.Type, fmt.Errorf("%w: outcome %q", ErrBadPayload, text))
	}
	return Event{Kind: KindMatchEnded, Type: env.Type, Outcome: o}
}

func unmarshalObject(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("%w: payload must be an object", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func malformed(typ string, err error) Event {
	return Event{Kind: KindMalformed, Type: typ, Err: err}
}

// EncodeRequestMatch serialises the pairing request.
func EncodeRequestMatch() ([]byte, error) {
	return json.Marshal(outFrame{Type: TypeInitGame})
}

// EncodeProposeMove serialises a move attempt.
func EncodeProposeMove(m Move) ([]byte, error) {
	if !ValidSquare(m.From) || !ValidSquare(m.To) || !validPromotion(m.Promotion) {
		return nil, fmt.Errorf("%w: move %q", ErrBadPayload, m.UCI())
	}
	return json.Marshal(outFrame{Type: TypeMove, Move: &m})
}

// The encoders below produce server-side frames. They exist for loopback
// probes and tests.

func EncodeMatchStarted(c Color, matchID string, initialMillis int64) ([]byte, error) {
	return json.Marshal(outFrame{Type: TypeInitGame, Payload: startPayload{Color: string(c), MatchID: matchID, TimeMS: initialMillis}})
}

func EncodeMoveConfirmed(m Move, mover Color) ([]byte, error) {
	return json.Marshal(outFrame{Type: TypeMove, Payload: movePayload{Move: m, Color: string(mover)}})
}

func EncodeMatchEnded(o Outcome) ([]byte, error) {
	return json.Marshal(outFrame{Type: TypeGameOver, Payload: endPayload{Outcome: string(o)}})
}
