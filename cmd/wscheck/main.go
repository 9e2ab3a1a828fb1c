package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-chess-client/internal/msgcat"
	"github.com/park285/cheese-chess-client/internal/presenter"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/rules"
	"github.com/park285/cheese-chess-client/internal/session"
	"github.com/park285/cheese-chess-client/internal/transport"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// wscheck probes a game service. With WSCHECK_LOOPBACK=1 it instead plays a
// short scripted match against an in-process server.
func main() {
	wsURL := strings.TrimSpace(os.Getenv("GAME_WS_URL"))
	wait := 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("WSCHECK_WAIT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			wait = d
		}
	}

	if os.Getenv("WSCHECK_LOOPBACK") == "1" {
		if err := loopback(wait); err != nil {
			log.Fatalf("loopback: %v", err)
		}
		return
	}
	if wsURL == "" {
		log.Fatal("GAME_WS_URL is required")
	}
	if err := probe(wsURL, wait); err != nil {
		log.Fatalf("probe: %v", err)
	}
}

// probe sends a match request and prints every decoded frame for a while.
func probe(wsURL string, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	log.Printf("WS connected: %s", wsURL)

	frame, err := protocol.EncodeRequestMatch()
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, json.RawMessage(frame)); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		ev := protocol.Decode(raw)
		if ev.Kind == protocol.KindMalformed {
			fmt.Printf("WS frame malformed type=%q err=%v raw=%s\n", ev.Type, ev.Err, raw)
			continue
		}
		fmt.Printf("WS frame %s color=%s move=%s outcome=%s\n", ev.Kind, ev.Color, ev.Move.UCI(), ev.Outcome)
	}
}

type inbound struct {
	Type string         `json:"type"`
	Move *protocol.Move `json:"move,omitempty"`
}

// serveScript answers like a tiny game service: start as white, confirm the
// first move, reply e7e5, then end in a draw.
func serveScript(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	ctx := r.Context()

	send := func(b []byte, err error) error {
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, b)
	}
	for {
		var in inbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return
		}
		switch in.Type {
		case protocol.TypeInitGame:
			if send(protocol.EncodeMatchStarted(protocol.White, uuid.NewString(), 60_000)) != nil {
				return
			}
		case protocol.TypeMove:
			if in.Move == nil {
				continue
			}
			if send(protocol.EncodeMoveConfirmed(*in.Move, protocol.White)) != nil {
				return
			}
			if send(protocol.EncodeMoveConfirmed(protocol.Move{From: "e7", To: "e5"}, protocol.Black)) != nil {
				return
			}
			if send(protocol.EncodeMatchEnded(protocol.OutcomeDraw)) != nil {
				return
			}
		}
	}
}

func loopback(wait time.Duration) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: http.HandlerFunc(serveScript), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	ws := transport.New(transport.Options{URL: "ws://" + ln.Addr().String()})
	sess := session.New(session.Config{InitialTime: time.Minute}, rules.NewEngine(), ws)
	ws.OnFrame(sess.Deliver)
	ws.OnStateChange(func(state transport.State) {
		log.Printf("WS state: %s", state)
		if state == transport.StateConnected {
			sess.Connected()
		}
	})

	states := make(chan session.SessionState, 64)
	sess.Subscribe(func(st session.SessionState) {
		select {
		case states <- st:
		default:
		}
	})
	go func() { _ = sess.Run(ctx) }()

	if err := ws.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = ws.Close(context.Background()) }()

	pres := presenter.New(msgcat.MustDefault())
	await := func(p session.Phase) (session.SessionState, error) {
		for {
			select {
			case st := <-states:
				if st.Phase == p {
					return st, nil
				}
			case <-ctx.Done():
				return session.SessionState{}, fmt.Errorf("waiting for %s: %w", p, ctx.Err())
			}
		}
	}

	if _, err := await(session.PhaseIdle); err != nil {
		return err
	}
	if err := sess.RequestMatch(ctx); err != nil {
		return err
	}
	if _, err := await(session.PhaseInProgress); err != nil {
		return err
	}
	if err := sess.ProposeMove(ctx, "e2", "e4"); err != nil {
		return err
	}
	st, err := await(session.PhaseGameOver)
	if err != nil {
		return err
	}
	fmt.Println(pres.Status(st))
	if len(st.MoveHistory) != 2 || st.Outcome != protocol.OutcomeDraw {
		return fmt.Errorf("unexpected final state: moves=%d outcome=%s", len(st.MoveHistory), st.Outcome)
	}
	log.Printf("loopback ok: version=%d", st.Version)
	return nil
}
