package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	appcfg "github.com/park285/cheese-chess-client/internal/config"
	"github.com/park285/cheese-chess-client/internal/httpapi"
	"github.com/park285/cheese-chess-client/internal/msgcat"
	"github.com/park285/cheese-chess-client/internal/obslog"
	"github.com/park285/cheese-chess-client/internal/presenter"
	"github.com/park285/cheese-chess-client/internal/publish"
	"github.com/park285/cheese-chess-client/internal/render"
	"github.com/park285/cheese-chess-client/internal/rules"
	"github.com/park285/cheese-chess-client/internal/session"
	"github.com/park285/cheese-chess-client/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	syncLog, err := obslog.Init(cfg.Log)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = syncLog() }()
	logger := obslog.L().With(zap.String("client_id", cfg.ClientID))

	cat, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		logger.Fatal("msgcat_init_failed", zap.Error(err))
	}
	pres := presenter.New(cat)

	ws := transport.New(transport.Options{
		URL:            cfg.GameWSURL,
		MaxReconnect:   cfg.WSMaxReconnect,
		ReconnectDelay: cfg.WSReconnectDelay,
		Headers: func() map[string]string {
			return map[string]string{"X-Client-Id": cfg.ClientID}
		},
		Logger: logger,
	})

	sess := session.New(session.Config{
		InitialTime: cfg.ClockInitial,
		Tick:        cfg.ClockTick,
		Logger:      logger,
	}, rules.NewEngine(), ws)

	ws.OnFrame(sess.Deliver)
	var linked atomic.Bool
	ws.OnStateChange(func(state transport.State) {
		logger.Info("ws_state", zap.String("state", string(state)))
		if state == transport.StateConnected {
			linked.Store(true)
			sess.Connected()
			return
		}
		if linked.Swap(false) {
			sess.Disconnected()
		}
	})
	sess.Subscribe(func(st session.SessionState) {
		logger.Debug("snapshot", zap.Uint64("version", st.Version), zap.String("status", pres.Status(st)))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(sess.Run(gctx)) })

	if cfg.RedisURL != "" {
		rdb, err := publish.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis_init_failed", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		pub := publish.NewPublisher(publish.NewStore(rdb, cfg.RedisSnapshotTTL), pres, cfg.ClientID, 64)
		cancelObs := sess.Subscribe(pub.Observe)
		defer cancelObs()
		g.Go(func() error { return ignoreCanceled(pub.Run(gctx)) })
	}

	if cfg.ControlAddr != "" {
		srv := httpapi.NewServer(sess, pres, render.New(), cfg.ClientID)
		g.Go(func() error { return srv.ListenAndServe(cfg.ControlAddr) })
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		if cfg.WSMaxReconnect <= 0 {
			logger.Error("ws_connect_failed", zap.Error(err))
			stop()
		} else {
			// 백그라운드 재연결에 맡긴다
			logger.Warn("ws_connect_retrying", zap.Error(err))
		}
	} else {
		cancel()
	}

	g.Go(func() error {
		<-gctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ignoreCanceled(ws.Close(cctx))
	})

	if err := g.Wait(); err != nil {
		logger.Error("client_exit", zap.Error(err))
		_ = syncLog()
		os.Exit(1)
	}
	logger.Info("client_exit")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
