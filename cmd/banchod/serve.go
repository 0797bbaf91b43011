package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/opsu/bancho/internal/authsvc"
	"github.com/opsu/bancho/internal/bancho"
	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/chat"
	"github.com/opsu/bancho/internal/config"
	"github.com/opsu/bancho/internal/dispatch"
	"github.com/opsu/bancho/internal/geo"
	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/metrics"
	"github.com/opsu/bancho/internal/queue"
	"github.com/opsu/bancho/internal/rpc"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/store"
)

func serveCmd() *cobra.Command {
	var (
		cfgPath string
		addr    string
		dbPath  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bancho server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to configuration file (YAML)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path override")
	return cmd
}

func runServe(cfg *config.Config) error {
	setupLogger(cfg.Log)
	slog.Info("banchod starting", "version", Version, "addr", cfg.Addr, "db", cfg.DBPath)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lc, err := buildLifecycle(ctx, cfg, st)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())

	dispatcher := dispatch.New()
	dispatch.Register(dispatcher)
	services := &dispatch.Services{
		Sessions: lc.Sessions,
		Channels: lc.Channels,
		Policy: chat.MessagePolicy{
			MaxLength:      cfg.MessageMaxLength,
			SensitiveWords: cfg.SensitiveWords,
		},
		Log:    slog.With("component", "dispatch"),
		Logout: lc.Logout,
		Observe: func(kind byte, err error) {
			name, ok := packets.InboundNames[kind]
			if !ok {
				name = "unknown"
			}
			result := "ok"
			if err != nil {
				result = "error"
			}
			collector.PacketsDispatched.WithLabelValues(name, result).Inc()
		},
	}

	reaper := lifecycle.NewReaper(lc,
		time.Duration(cfg.SessionTimeoutSeconds)*time.Second,
		time.Duration(cfg.SessionRecycleIntervalSeconds)*time.Second,
		time.Duration(cfg.ChannelMessagesRecycleSeconds)*time.Second,
	)
	reaper.NotifyRecycleInterval = time.Duration(cfg.NotifyMessagesRecycleSeconds) * time.Second
	reaper.OnReaped = func(count int) {
		collector.ReapedSessions.Add(float64(count))
		collector.OnlineSessions.Set(float64(lc.Sessions.Len()))
	}
	go reaper.Run(ctx)

	if cfg.RPC.Mode == "remote" && cfg.RPC.Addr != "" {
		local := &rpc.Local{
			Lifecycle:  lc,
			Dispatcher: dispatcher,
			Services:   services,
			Geo:        lc.Geo,
			Passwords:  lc.Verifier,
		}
		if err := serveRPC(ctx, cfg.RPC.Addr, local); err != nil {
			return err
		}
	}

	srv := bancho.New(lc, dispatcher, services, collector, slog.Default())
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("banchod stopped")
	return nil
}

// setupLogger installs the process-wide slog handler per the log config.
func setupLogger(lcfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(lcfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(lcfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// storeUsers adapts the SQLite store to the lifecycle's username-resolution
// collaborator.
type storeUsers struct {
	st *store.Store
}

func (u storeUsers) ByUsername(name string) (lifecycle.UserRecord, bool) {
	row, err := u.st.UserByUsername(context.Background(), name)
	if err != nil {
		return lifecycle.UserRecord{}, false
	}
	return lifecycle.UserRecord{
		UserID:          row.UserID,
		Username:        row.Username,
		UsernameUnicode: row.UsernameUnicode,
		PasswordHash:    row.PasswordHash,
		Privileges:      session.Privilege(row.Privileges),
		Friends:         row.Friends,
	}, true
}

// buildLifecycle assembles the lifecycle and its collaborators: channels
// seeded from config and the store, the blocklist merged from both sources,
// and the notify bus.
func buildLifecycle(ctx context.Context, cfg *config.Config, st *store.Store) (*lifecycle.Lifecycle, error) {
	registry := chat.NewRegistry()

	// Config-declared channels are persisted, then the registry is seeded
	// from the store so channels created through it survive restarts.
	for _, ch := range cfg.AutoJoinChannels {
		err := st.UpsertChannel(ctx, store.ChannelRow{
			Name:            ch.Name,
			Title:           ch.Title,
			ReadCapability:  ch.ReadCapability,
			WriteCapability: ch.WriteCapability,
			AutoJoin:        ch.AutoJoin,
			AutoClose:       ch.AutoClose,
		})
		if err != nil {
			return nil, fmt.Errorf("persist channel %s: %w", ch.Name, err)
		}
	}
	rows, err := st.Channels(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		registry.Create(chat.NewChannel(
			row.Name, row.Title,
			session.Privilege(row.ReadCapability), session.Privilege(row.WriteCapability),
			row.AutoJoin, row.AutoClose,
		))
	}

	blocked := make(map[string]struct{})
	for _, ip := range cfg.LoginDisallowedIP {
		blocked[ip] = struct{}{}
	}
	storeBlocked, err := st.BlockedIPs(ctx)
	if err != nil {
		return nil, err
	}
	for _, ip := range storeBlocked {
		blocked[ip] = struct{}{}
	}

	key := cfg.TokenKey
	if key == "" {
		key = uuid.NewString()
		slog.Warn("no token_key configured, using an ephemeral signing key")
	}

	menuIconURL, menuClickURL, _ := strings.Cut(cfg.MenuIcon, "|")

	lc := &lifecycle.Lifecycle{
		Sessions:         session.NewStore(),
		Channels:         registry,
		Verifier:         authsvc.NewBcryptVerifier(),
		Signer:           authsvc.NewSignatureService([]byte(key)),
		Geo:              geo.NewStaticLookup(),
		Users:            storeUsers{st: st},
		Retry:            lifecycle.NewRetryCache(time.Duration(cfg.LoginRetryExpireSeconds) * time.Second),
		Log:              slog.With("component", "lifecycle"),
		Notify:           queue.NewBus(),
		NotifyTTL:        time.Duration(cfg.NotifyMessagesRecycleSeconds) * time.Second,
		LoginEnabled:     cfg.LoginEnabled,
		DisallowedIPs:    blocked,
		RetryMax:         cfg.LoginRetryMax,
		MenuIconURL:      menuIconURL,
		MenuClickURL:     menuClickURL,
		OnlineUsersLimit: cfg.OnlineUsersLimit,
		OnlineUsersMax:   cfg.OnlineUsersMax,
	}
	return lc, nil
}

// serveRPC starts the gRPC half of the RPC shim on addr, stopping it
// gracefully on ctx cancellation.
func serveRPC(ctx context.Context, addr string, svc rpc.Service) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc listen %s: %w", addr, err)
	}
	grpcServer := rpc.NewServer(svc)
	go func() {
		slog.Info("rpc server listening", "addr", addr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("rpc server exited", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()
	return nil
}
