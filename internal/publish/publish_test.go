package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-chess-client/internal/session"
	"github.com/park285/cheese-chess-client/pkg/chessdto"
)

type stubViewer struct{}

func (stubViewer) ToView(clientID string, st session.SessionState) chessdto.SessionView {
	return chessdto.SessionView{ClientID: clientID, Version: st.Version, Phase: string(st.Phase)}
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := Dial(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, 10*time.Minute), mr
}

func TestDialRejectsBadURL(t *testing.T) {
	if _, err := Dial(context.Background(), "not a url"); err == nil {
		t.Fatalf("bad url accepted")
	}
}

func TestSaveLoad(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if v, err := s.Load(ctx, "c1"); err != nil || v != nil {
		t.Fatalf("empty load = %v, %v", v, err)
	}
	view := chessdto.SessionView{ClientID: "c1", Version: 3, Phase: "in_progress", MovesUCI: []string{"e2e4"}}
	if err := s.Save(ctx, "c1", view); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "c1")
	if err != nil || got == nil {
		t.Fatalf("Load: %v %v", got, err)
	}
	if got.Version != 3 || got.MovesUCI[0] != "e2e4" {
		t.Fatalf("loaded %+v", got)
	}
	if ttl := mr.TTL("chess:client:c1:state"); ttl != 10*time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestSavePublishes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ps := s.Subscribe(ctx, "c1")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := s.Save(ctx, "c1", chessdto.SessionView{Version: 9, Phase: "game_over"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	msg, err := ps.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var v chessdto.SessionView
	if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Channel != "chess:client:c1:events" || v.Version != 9 {
		t.Fatalf("message = %s %+v", msg.Channel, v)
	}
}

func TestPublisherKeepsNewest(t *testing.T) {
	s, _ := newTestStore(t)
	p := NewPublisher(s, stubViewer{}, "c2", 2)

	for v := uint64(1); v <= 5; v++ {
		p.Observe(session.SessionState{Version: v, Phase: session.PhaseInProgress})
	}
	if p.Dropped() != 3 {
		t.Fatalf("dropped = %d", p.Dropped())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		v, err := s.Load(context.Background(), "c2")
		if err == nil && v != nil && v.Version == 5 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("latest snapshot never stored")
}
