// Command rollback-lab is a headless demo harness for the rollback engine:
// it drives a toy two-axis-movement simulation through one of the engine's
// three session modes and logs what the rollback loop is doing. It is a
// thin, flag-configured binary wiring library packages together, with no
// engine logic of its own.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nullframe/rollback/internal/frame"
	"github.com/nullframe/rollback/internal/hub"
	"github.com/nullframe/rollback/internal/metrics"
	"github.com/nullframe/rollback/internal/session"
	"github.com/nullframe/rollback/internal/udpsocket"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("rollback-lab %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventHub := hub.New[session.Event](256)
	tail := eventHub.NewClient()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logEvents(ctx, l, tail)
	}()

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	}()

	var err error
	switch cfg.mode {
	case "synctest":
		err = runSynctest(ctx, cfg, l, eventHub)
	case "host":
		err = runP2P(ctx, cfg, l, eventHub, true)
	case "join":
		err = runP2P(ctx, cfg, l, eventHub, false)
	case "spectator":
		err = runSpectator(ctx, cfg, l, eventHub)
	}
	if err != nil {
		l.Error("session_error", "error", err)
	}

	cancel()
	eventHub.Remove(tail)
	wg.Wait()
}

// logEvents drains one hub client's event feed and logs each entry; it
// stands in for whatever richer observer (replay recorder, UI overlay)
// a real host would attach through the same hub fanout.
func logEvents(ctx context.Context, l *slog.Logger, c *hub.Client[session.Event]) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Closed:
			return
		case e, ok := <-c.Out:
			if !ok {
				return
			}
			l.Info("session_event", "kind", e.Kind.String(), "handle", e.Handle)
		}
	}
}

func tickInterval(cfg *appConfig) time.Duration {
	return time.Second / time.Duration(cfg.tickRate)
}

func runSynctest(ctx context.Context, cfg *appConfig, l *slog.Logger, eventHub *hub.Hub[session.Event]) error {
	s, err := session.NewSynctest[Input, GameState](cfg.numPlayers,
		session.WithFrameDelay(cfg.frameDelay),
		session.WithCheckDistance(cfg.checkDist),
	)
	if err != nil {
		return fmt.Errorf("new synctest session: %w", err)
	}

	state := newGameState(cfg.numPlayers)
	ticker := time.NewTicker(tickInterval(cfg))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for h := 0; h < cfg.numPlayers; h++ {
			if _, err := s.AddLocalInput(frame.Handle(h), localInputFor(state.Frame)); err != nil {
				l.Info("add_local_input_error", "error", err.Error())
			}
		}
		for _, ev := range s.DrainEvents() {
			eventHub.Broadcast(ev)
		}
		state = applySynctestRequests(s.AdvanceFrame(), state)
	}
}

func applySynctestRequests(reqs []session.Request[Input, GameState], state GameState) GameState {
	for _, r := range reqs {
		switch r.Kind {
		case session.RequestLoadGameState:
			if loaded, ok := r.Load(); ok {
				state = loaded
			}
		case session.RequestAdvanceFrame:
			state = advance(state, r.Inputs)
		case session.RequestSaveGameState:
			r.Save(state, state.serialize())
		}
	}
	return state
}

func runP2P(ctx context.Context, cfg *appConfig, l *slog.Logger, eventHub *hub.Hub[session.Event], isHost bool) error {
	sock, err := udpsocket.Listen(cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer sock.Close()

	remote, err := net.ResolveUDPAddr("udp", cfg.remoteAddr)
	if err != nil {
		return fmt.Errorf("resolve remote: %w", err)
	}

	localHandle := frame.Handle(0)
	players := []session.PlayerSpec[*net.UDPAddr]{
		{Type: session.PlayerLocal},
		{Type: session.PlayerRemote, Addr: remote},
	}
	if !isHost {
		localHandle = frame.Handle(1)
		players = []session.PlayerSpec[*net.UDPAddr]{
			{Type: session.PlayerRemote, Addr: remote},
			{Type: session.PlayerLocal},
		}
	}

	s, err := session.NewP2P[Input, GameState, *net.UDPAddr](sock, players, nil, decodeInput, time.Now(),
		session.WithFrameDelay(cfg.frameDelay),
	)
	if err != nil {
		return fmt.Errorf("new p2p session: %w", err)
	}

	if isHost && cfg.mdnsEnable {
		port := sock.LocalAddr().Port
		cleanup, mErr := startMDNS(ctx, cfg, port)
		if mErr != nil {
			l.Info("mdns_start_failed", "error", mErr.Error())
		} else {
			defer cleanup()
		}
	}

	state := newGameState(cfg.numPlayers)
	ticker := time.NewTicker(tickInterval(cfg))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		now := time.Now()
		s.PollRemoteClients(now)
		for _, ev := range s.DrainEvents() {
			eventHub.Broadcast(ev)
		}
		if _, err := s.AddLocalInput(localHandle, localInputFor(state.Frame)); err != nil && s.State() == session.StateRunning {
			l.Info("add_local_input_error", "error", err.Error())
		}
		state = applyP2PRequests(s.AdvanceFrame(), state)
	}
}

func applyP2PRequests(reqs []session.Request[Input, GameState], state GameState) GameState {
	for _, r := range reqs {
		switch r.Kind {
		case session.RequestLoadGameState:
			if loaded, ok := r.Load(); ok {
				state = loaded
			}
		case session.RequestAdvanceFrame:
			state = advance(state, r.Inputs)
		case session.RequestSaveGameState:
			r.Save(state, state.serialize())
		}
	}
	return state
}

func runSpectator(ctx context.Context, cfg *appConfig, l *slog.Logger, eventHub *hub.Hub[session.Event]) error {
	sock, err := udpsocket.Listen(cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer sock.Close()

	hostAddr, err := net.ResolveUDPAddr("udp", cfg.remoteAddr)
	if err != nil {
		return fmt.Errorf("resolve host: %w", err)
	}

	s, err := session.NewSpectator[Input, *net.UDPAddr](sock, hostAddr, cfg.numPlayers, decodeInput, time.Now())
	if err != nil {
		return fmt.Errorf("new spectator session: %w", err)
	}

	state := newGameState(cfg.numPlayers)
	ticker := time.NewTicker(tickInterval(cfg))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s.PollRemoteClients(time.Now())
		for _, ev := range s.DrainEvents() {
			eventHub.Broadcast(ev)
		}
		for _, req := range s.AdvanceFrame() {
			state = advance(state, req.Inputs)
		}
		if behind := s.FramesBehindHost(); behind > 0 {
			l.Info("spectator_behind", "frames", behind)
		}
	}
}
