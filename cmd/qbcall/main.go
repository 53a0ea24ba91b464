/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// qbcall logs a QuickBlox user in, connects chat and either places a call
// to --call or answers incoming calls until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	quickblox "github.com/tejzpr/quickblox-go-sdk"
	"github.com/tejzpr/quickblox-go-sdk/auth"
	"github.com/tejzpr/quickblox-go-sdk/chat"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
	"github.com/tejzpr/quickblox-go-sdk/store"
	"github.com/tejzpr/quickblox-go-sdk/videochat"
)

type flags struct {
	configPath  string
	login       string
	password    string
	callUserID  int
	redisAddr   string
	metricsAddr string
	turnUser    string
	turnCred    string
	debug       bool
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var f flags
	flagSet := pflag.NewFlagSet("qbcall", pflag.ContinueOnError)
	flagSet.StringVarP(&f.configPath, "config", "c", qbsdk.ConfigPathFromEnv(), "YAML configuration file (default: $QB_CONFIG)")
	flagSet.StringVarP(&f.login, "login", "l", os.Getenv("QB_USER_LOGIN"), "user login")
	flagSet.StringVarP(&f.password, "password", "p", os.Getenv("QB_USER_PASSWORD"), "user password")
	flagSet.IntVar(&f.callUserID, "call", 0, "user id to call; without it incoming calls are answered")
	flagSet.StringVar(&f.redisAddr, "redis", "", "Redis address for the roster store (default: in memory)")
	flagSet.StringVar(&f.metricsAddr, "metrics", "", "serve Prometheus metrics on this address, e.g. :9090")
	flagSet.StringVar(&f.turnUser, "turn-user", "", "TURN username")
	flagSet.StringVar(&f.turnCred, "turn-credential", "", "TURN credential")
	flagSet.BoolVarP(&f.debug, "debug", "d", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if f.login == "" || f.password == "" {
		return fmt.Errorf("--login and --password are required")
	}

	cfg, err := qbsdk.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	if f.debug {
		cfg.Debug = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	opts := []quickblox.Option{
		quickblox.WithRegisterer(reg),
		quickblox.WithTURNCredentials(f.turnUser, f.turnCred),
	}
	if f.redisAddr != "" {
		rdb, err := store.DialRedis(ctx, f.redisAddr, os.Getenv("QB_REDIS_PASSWORD"), 0)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, quickblox.WithStore(store.NewRedis(rdb, "qbcall:"+f.login)))
	}

	client, err := quickblox.NewClient("", cfg, opts...)
	if err != nil {
		return err
	}
	logger := client.Core().GetLogger()

	if f.metricsAddr != "" {
		go serveMetrics(f.metricsAddr, reg, logger)
	}

	fmt.Println("[1/3] Creating user session...")
	session, err := client.Auth().CreateSession(ctx, &auth.UserCredentials{Login: f.login, Password: f.password})
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Auth().DestroySession(context.Background()); err != nil {
			logger.Printf("failed to destroy session: %v", err)
		}
	}()
	fmt.Printf("  User ID: %d\n", session.UserID)

	fmt.Println("[2/3] Connecting chat...")
	chatClient := client.Chat()
	roster, err := chatClient.Connect(ctx, chat.ConnectParams{UserID: session.UserID, Password: f.password})
	if err != nil {
		return err
	}
	defer chatClient.Disconnect()
	fmt.Printf("  Roster: %d contacts\n", len(roster))

	chatClient.OnReconnectFailed(func(err error) {
		fmt.Printf("Chat reconnect failed: %v\n", err)
		cancel()
	})

	calls := &callTracker{sessions: make(map[string]*videochat.CallSession)}
	defer calls.hangupAll()

	signaling := client.VideoChat()
	signaling.OnAccept(func(s *videochat.Signal) {
		fmt.Printf("Call %s accepted by %d\n", s.SessionID, s.OpponentID)
	})
	signaling.OnReject(func(s *videochat.Signal) {
		fmt.Printf("Call %s rejected by %d\n", s.SessionID, s.OpponentID)
		calls.hangup(s.SessionID)
	})
	signaling.OnStop(func(s *videochat.Signal) {
		fmt.Printf("Call %s stopped by %d (%s)\n", s.SessionID, s.OpponentID, s.Extra[videochat.StopReasonParam])
		calls.hangup(s.SessionID)
	})

	fmt.Println("[3/3] Ready.")
	if f.callUserID != 0 {
		if err := placeCall(ctx, client, calls, f.callUserID, videochat.ExtraParams{"callerName": f.login}); err != nil {
			return err
		}
	} else {
		signaling.OnCall(func(s *videochat.Signal) {
			// Negotiation sends stanzas; keep it off the chat read loop.
			go answerCall(ctx, client, calls, s)
		})
		fmt.Println("Waiting for incoming calls, press Ctrl+C to exit")
	}

	<-ctx.Done()
	fmt.Println("Shutting down...")
	return nil
}

func placeCall(ctx context.Context, client *quickblox.QuickBloxClient, calls *callTracker, opponentID int, extra videochat.ExtraParams) error {
	session := client.NewCallSession(&videochat.SessionParams{Renderer: remoteRenderer()})
	calls.add(opponentID, session)

	if _, err := session.GetUserMedia(ctx); err != nil {
		return err
	}
	if err := session.Call(opponentID, extra); err != nil {
		return err
	}
	fmt.Printf("Calling %d (session %s)\n", opponentID, session.SessionID())

	// Stop ringing after a minute without an answer.
	go func() {
		select {
		case <-time.After(time.Minute):
		case <-ctx.Done():
			return
		}
		if session.State() == videochat.StateInactive && calls.get(session.SessionID()) != nil {
			_ = session.Stop(opponentID, videochat.ExtraParams{videochat.StopReasonParam: string(videochat.StopReasonNotAnswer)})
			calls.hangup(session.SessionID())
		}
	}()
	return nil
}

func answerCall(ctx context.Context, client *quickblox.QuickBloxClient, calls *callTracker, s *videochat.Signal) {
	fmt.Printf("Incoming call %s from %d\n", s.SessionID, s.OpponentID)
	session := client.NewCallSession(&videochat.SessionParams{
		SessionID:          s.SessionID,
		SessionDescription: s.SDP,
		Renderer:           remoteRenderer(),
	})
	calls.add(s.OpponentID, session)

	if _, err := session.GetUserMedia(ctx); err != nil {
		fmt.Printf("Rejecting call %s: %v\n", s.SessionID, err)
		_ = session.Reject(s.OpponentID, nil)
		calls.hangup(s.SessionID)
		return
	}
	if err := session.Accept(s.OpponentID, nil); err != nil {
		fmt.Printf("Failed to accept call %s: %v\n", s.SessionID, err)
		calls.hangup(s.SessionID)
	}
}

func remoteRenderer() videochat.Renderer {
	return &videochat.StreamRenderer{OnAttach: func(stream videochat.MediaStream) {
		remote, ok := stream.(videochat.RemoteStream)
		if !ok {
			return
		}
		for _, track := range remote.Tracks() {
			fmt.Printf("Receiving %s (%s)\n", track.Kind(), track.Codec().MimeType)
		}
	}}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger qbsdk.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("metrics server stopped: %v", err)
	}
}

// callTracker holds the live sessions by session id.
type callTracker struct {
	mu        sync.Mutex
	sessions  map[string]*videochat.CallSession
	opponents map[string]int
}

func (t *callTracker) add(opponentID int, s *videochat.CallSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opponents == nil {
		t.opponents = make(map[string]int)
	}
	t.sessions[s.SessionID()] = s
	t.opponents[s.SessionID()] = opponentID
}

func (t *callTracker) get(sessionID string) *videochat.CallSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[sessionID]
}

func (t *callTracker) hangup(sessionID string) {
	t.mu.Lock()
	s := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	delete(t.opponents, sessionID)
	t.mu.Unlock()
	if s != nil {
		_ = s.Hangup()
	}
}

// hangupAll stops and releases every live session.
func (t *callTracker) hangupAll() {
	t.mu.Lock()
	sessions := t.sessions
	opponents := t.opponents
	t.sessions = make(map[string]*videochat.CallSession)
	t.opponents = nil
	t.mu.Unlock()

	for id, s := range sessions {
		_ = s.Stop(opponents[id], videochat.ExtraParams{videochat.StopReasonParam: string(videochat.StopReasonManually)})
		_ = s.Hangup()
	}
}
