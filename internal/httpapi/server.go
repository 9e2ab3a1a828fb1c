package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/park285/cheese-chess-client/internal/obslog"
	"github.com/park285/cheese-chess-client/internal/presenter"
	"github.com/park285/cheese-chess-client/internal/protocol"
	"github.com/park285/cheese-chess-client/internal/render"
	"github.com/park285/cheese-chess-client/internal/session"
	"github.com/park285/cheese-chess-client/pkg/chessdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Controller is the part of the session the control API drives.
type Controller interface {
	State() session.SessionState
	RequestMatch(ctx context.Context) error
	PlayAgain(ctx context.Context) error
	ProposeMove(ctx context.Context, from, to string) error
	ProposePromotion(ctx context.Context, from, to, promotion string) error
}

// Server is the local control surface for a UI.
type Server struct {
	ctrl     Controller
	pres     *presenter.Presenter
	renderer *render.Renderer
	clientID string
	log      *zap.Logger

	intentTimeout time.Duration
	srv           *fasthttp.Server
}

func NewServer(ctrl Controller, pres *presenter.Presenter, renderer *render.Renderer, clientID string) *Server {
	s := &Server{
		ctrl:          ctrl,
		pres:          pres,
		renderer:      renderer,
		clientID:      clientID,
		log:           obslog.L().With(zap.String("component", "httpapi")),
		intentTimeout: 3 * time.Second,
	}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		Name:         "cheese-chess-client",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.log.Info("control_api_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case ctx.IsGet() && path == "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case ctx.IsGet() && path == "/state":
		s.writeJSON(ctx, fasthttp.StatusOK, s.pres.ToView(s.clientID, s.ctrl.State()))
	case ctx.IsGet() && path == "/status":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString(s.pres.Status(s.ctrl.State()))
	case ctx.IsGet() && path == "/board.png":
		s.handleBoard(ctx)
	case ctx.IsPost() && path == "/match":
		s.runIntent(ctx, "match", s.ctrl.RequestMatch)
	case ctx.IsPost() && path == "/again":
		s.runIntent(ctx, "again", s.ctrl.PlayAgain)
	case ctx.IsPost() && path == "/move":
		s.handleMove(ctx)
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, chessdto.DomainError{Code: "not_found", Message: "no route for " + string(ctx.Method()) + " " + path})
	}
}

func (s *Server) handleBoard(ctx *fasthttp.RequestCtx) {
	st := s.ctrl.State()
	header, footer := "", ""
	if st.Phase == session.PhaseInProgress || st.Phase == session.PhaseGameOver {
		header, footer = clockLabels(st)
	}
	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	img, err := s.renderer.RenderState(rctx, st, header, footer)
	if err != nil {
		s.log.Error("render_board_failed", zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, chessdto.DomainError{Code: "render_failed", Message: err.Error()})
		return
	}
	ctx.SetContentType("image/png")
	ctx.SetBody(img)
}

// clockLabels puts the opponent's clock above the board. basicfont has no
// Hangul glyphs so the labels stay ASCII.
func clockLabels(st session.SessionState) (string, string) {
	white := "White " + presenter.Clock(st.Clocks.White)
	black := "Black " + presenter.Clock(st.Clocks.Black)
	if st.LocalColor == protocol.Black {
		return white, black
	}
	return black, white
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx) {
	var req chessdto.MoveRequest
	args := ctx.QueryArgs()
	req.From = string(args.Peek("from"))
	req.To = string(args.Peek("to"))
	req.Promotion = string(args.Peek("promotion"))
	if req.From == "" && req.To == "" && len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			s.writeError(ctx, fasthttp.StatusBadRequest, chessdto.DomainError{Code: "bad_request", Message: "invalid move body"})
			return
		}
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, chessdto.DomainError{Code: "bad_request", Message: "from and to are required"})
		return
	}
	s.runIntent(ctx, "move", func(c context.Context) error {
		if req.Promotion != "" {
			return s.ctrl.ProposePromotion(c, req.From, req.To, req.Promotion)
		}
		return s.ctrl.ProposeMove(c, req.From, req.To)
	})
}

func (s *Server) runIntent(ctx *fasthttp.RequestCtx, name string, fn func(context.Context) error) {
	ictx, cancel := context.WithTimeout(context.Background(), s.intentTimeout)
	defer cancel()
	if err := fn(ictx); err != nil {
		status, code := classify(err)
		s.log.Info("intent_rejected", zap.String("intent", name), zap.String("code", code), zap.Error(err))
		s.writeError(ctx, status, chessdto.DomainError{Code: code, Message: err.Error(), Retryable: status == fasthttp.StatusServiceUnavailable})
		return
	}
	st := s.ctrl.State()
	s.writeJSON(ctx, fasthttp.StatusOK, chessdto.AckResponse{OK: true, Version: st.Version, Phase: string(st.Phase)})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrWrongPhase):
		return fasthttp.StatusConflict, "wrong_phase"
	case errors.Is(err, session.ErrNotYourTurn):
		return fasthttp.StatusConflict, "not_your_turn"
	case errors.Is(err, session.ErrBadSquare):
		return fasthttp.StatusBadRequest, "bad_square"
	case errors.Is(err, context.DeadlineExceeded):
		// the session drops intents that expire before it reaches them
		return fasthttp.StatusGatewayTimeout, "timeout"
	default:
		return fasthttp.StatusServiceUnavailable, "unavailable"
	}
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.Error(`{"error":"encode failed"}`, fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, e chessdto.DomainError) {
	s.writeJSON(ctx, status, e)
}
