package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sunnyswag/RTCStartupDemo/internal/call"
	"github.com/sunnyswag/RTCStartupDemo/internal/config"
	"github.com/sunnyswag/RTCStartupDemo/internal/room"
	"github.com/sunnyswag/RTCStartupDemo/internal/ui"
)

var (
	flagServer       string
	flagIdentity     string
	flagSTUN         string
	flagTURN         string
	flagTURNUser     string
	flagTURNPass     string
	flagRelay        bool
	flagCodec        string
	flagGlare        string
	flagCapabilities string
	flagCall         string
	flagHeadless     bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room and call one of its members",
	Long: `Join a room on the rendezvous server. Members of the room can call each
other; a call is negotiated directly between the two peers.

Without a room name a fresh one is generated; share it with the other side.

Examples:
  rtcdemo join
  rtcdemo join quiet-otter-lagoon
  rtcdemo join lobby --server ws://signal.example.com/ws --call bob
  rtcdemo join lobby --headless --glare lexicographic`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.Options{
			ConfigFile:   flagConfigFile,
			ServerURL:    flagServer,
			Identity:     flagIdentity,
			STUNServer:   flagSTUN,
			TURNServer:   flagTURN,
			TURNUser:     flagTURNUser,
			TURNPass:     flagTURNPass,
			Codec:        flagCodec,
			Glare:        flagGlare,
			Capabilities: flagCapabilities,
		}
		if len(args) == 1 {
			opts.Room = args[0]
		}
		if cmd.Flags().Changed("relay") {
			opts.ForceRelay = &flagRelay
		}
		return joinRoom(cmd.Context(), opts)
	},
}

func joinRoom(parent context.Context, opts config.Options) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.Room == "" {
		name, err := room.GenerateName()
		if err != nil {
			return err
		}
		cfg.Room = name
		ui.PrintInfof("No room given, created %s", ui.BoldStyle.Render(name))
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagHeadless {
		return runHeadless(ctx, cfg, initLogging(slog.LevelInfo))
	}
	return runInteractive(ctx, cfg, initLogging(slog.LevelError))
}

func runHeadless(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	lost := make(chan error, 1)
	mgr, err := NewCallManager(cfg, logObserver{log: logger, lost: lost}, logger)
	if err != nil {
		return err
	}

	err = headlessSession(ctx, mgr, cfg, lost, logger)
	mgr.Close()
	ui.RenderSessionSummary(mgr.Sessions())
	if err == nil {
		ui.PrintSuccess(fmt.Sprintf("Left room %s", cfg.Room))
	}
	return err
}

func headlessSession(ctx context.Context, mgr *call.Manager, cfg *config.Config, lost <-chan error, logger *slog.Logger) error {
	if err := mgr.Join(ctx); err != nil {
		return err
	}
	logger.Info("joined room", "room", cfg.Room, "identity", cfg.Identity, "server", cfg.ServerURL)

	g, ctx := errgroup.WithContext(ctx)

	// At most one auto-call is pending; a re-join starts a new one once the
	// previous call went through.
	var calling atomic.Bool
	startAutoCall := func() {
		if flagCall == "" || !calling.CompareAndSwap(false, true) {
			return
		}
		g.Go(func() error {
			defer calling.Store(false)
			return autoCall(ctx, mgr, flagCall)
		})
	}

	startAutoCall()
	g.Go(func() error { return rejoinOnLoss(ctx, mgr, lost, startAutoCall) })
	return g.Wait()
}

func runInteractive(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sp := ui.RunConnectionSpinner("Preparing media engine...")
	notifier := &ui.Notifier{}
	mgr, err := NewCallManager(cfg, notifier, logger)
	sp.Stop()
	if err != nil {
		return err
	}

	view := ui.NewCallView(mgr, cfg.ServerURL)
	program := tea.NewProgram(view, tea.WithContext(ctx))
	notifier.Attach(program)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := mgr.Join(gctx); err != nil {
			// The view shows the failure and offers a re-join.
			logger.Error("failed to join room", "room", cfg.Room, "error", err)
			return nil
		}
		if flagCall == "" {
			return nil
		}
		if err := autoCall(gctx, mgr, flagCall); err != nil {
			program.Send(ui.ActionResult(fmt.Sprintf("call %s", flagCall), err))
		}
		return nil
	})

	err = g.Wait()
	mgr.Close()
	ui.RenderSessionSummary(mgr.Sessions())
	return err
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "", "Rendezvous server URL (env RTCDEMO_SERVER)")
	joinCmd.Flags().StringVarP(&flagIdentity, "id", "i", "", "Identity in the room (env RTCDEMO_ID, default random)")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVar(&flagCodec, "codec", "", "Signaling codec: json or msgpack")
	joinCmd.Flags().StringVar(&flagGlare, "glare", "", "Simultaneous offer policy: none or lexicographic")
	joinCmd.Flags().StringVar(&flagCapabilities, "capabilities", "", "Media capabilities: recvonly or none")
	joinCmd.Flags().StringVarP(&flagCall, "call", "c", "", "Call this peer as soon as it joins")
	joinCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Run without the interactive view; log events instead")
}
