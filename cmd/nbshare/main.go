// Package main provides a thin CLI driver for manually exercising a
// sender/receiver pair: it is a reference harness, not a full front-end.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/postalsys/nbshare/internal/config"
	"github.com/postalsys/nbshare/internal/endpointinfo"
	"github.com/postalsys/nbshare/internal/logging"
	"github.com/postalsys/nbshare/internal/metrics"
	"github.com/postalsys/nbshare/internal/nearbysocket"
	"github.com/postalsys/nbshare/internal/nettransport"
	"github.com/postalsys/nbshare/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is set at build time via ldflags.
var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "nbshare",
		Short:   "Nearby Share-interoperable point-to-point file transfer",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(receiveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func sendCmd() *cobra.Command {
	var addr string
	var deviceName string
	var rateLimit int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "send [files...]",
		Short: "Send one or more files to a listening peer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if deviceName != "" {
				cfg.Device.Name = deviceName
			}
			if rateLimit > 0 {
				cfg.Transfer.RateLimitBytesPerSec = rateLimit
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
			m := serveMetrics(metricsAddr, logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			conn, err := nettransport.New().Dial(ctx, addr, 30*time.Second)
			if err != nil {
				return fmt.Errorf("dial %s: %w", addr, err)
			}
			defer conn.Close()

			outgoing := make([]session.OutgoingFile, 0, len(args))
			for _, path := range args {
				outgoing = append(outgoing, session.OutgoingFile{Path: path})
			}

			return runSession(ctx, conn, true, cfg, logger, m, session.Config{
				OutgoingFiles:  outgoing,
				BytesPerSecond: int64(cfg.Transfer.RateLimitBytesPerSec),
			}, nil)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7873", "receiver address to dial")
	cmd.Flags().StringVar(&deviceName, "name", "", "override device.name from config")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "override transfer.rate_limit_bytes_per_sec (0 = unlimited)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to serve /metrics on")
	return cmd
}

func receiveCmd() *cobra.Command {
	var listen string
	var downloadDir string
	var autoAccept bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Listen for an incoming sender connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if downloadDir != "" {
				cfg.Transfer.DownloadDir = downloadDir
			}
			if autoAccept {
				cfg.Transfer.AutoAccept = true
			}
			if err := os.MkdirAll(cfg.Transfer.DownloadDir, 0o755); err != nil {
				return fmt.Errorf("create download dir: %w", err)
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
			m := serveMetrics(metricsAddr, logger)

			ln, err := nettransport.New().Listen(listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}
			defer ln.Close()
			fmt.Printf("listening on %s, download dir %s\n", ln.Addr(), cfg.Transfer.DownloadDir)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			conn, err := ln.Accept(ctx)
			if err != nil {
				return fmt.Errorf("accept: %w", err)
			}
			defer conn.Close()

			return runSession(ctx, conn, false, cfg, logger, m, session.Config{
				DownloadDir: cfg.Transfer.DownloadDir,
			}, promptForAccept(cfg.Transfer.AutoAccept))
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":7873", "address to listen on")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "override transfer.download_dir from config")
	cmd.Flags().BoolVar(&autoAccept, "auto-accept", false, "accept every inbound transfer automatically")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "optional address to serve /metrics on")
	return cmd
}

// acceptDecision is asked once negotiation completes on the receiver path.
type acceptDecision func(peerName, pin string, files []session.TransferredFile) bool

func promptForAccept(autoAccept bool) acceptDecision {
	if autoAccept {
		return func(string, string, []session.TransferredFile) bool { return true }
	}
	return func(peerName, pin string, files []session.TransferredFile) bool {
		printTransferSummary(peerName, pin, files)

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Println("stdin is not a terminal, rejecting (pass --auto-accept to skip this prompt)")
			return false
		}

		var confirmed bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Accept transfer from %s?", peerName)).
				Affirmative("Accept").
				Negative("Reject").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return false
		}
		return confirmed
	}
}

var (
	pinStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	peerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

func printTransferSummary(peerName, pin string, files []session.TransferredFile) {
	fmt.Printf("%s wants to send:\n", peerStyle.Render(peerName))
	for _, f := range files {
		fmt.Printf("  %s (%s)\n", f.Name, humanize.Bytes(uint64(f.Size)))
	}
	fmt.Printf("confirm PIN matches on both devices: %s\n", pinStyle.Render(pin))
}

// runSession wires a NearbySocket, runs the UKEY2 handshake, and drives the
// session controller to completion. onNegotiated is nil on the sender path.
func runSession(ctx context.Context, conn net.Conn, isSender bool, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, sessCfg session.Config, onNegotiated acceptDecision) error {
	localID, err := randomEndpointID()
	if err != nil {
		return err
	}
	info, err := endpointinfo.NewEndpointInfo(1, cfg.Device.Type, cfg.Device.Visible, cfg.Device.Name)
	if err != nil {
		return fmt.Errorf("build endpoint info: %w", err)
	}
	encodedInfo, err := info.Encode()
	if err != nil {
		return fmt.Errorf("encode endpoint info: %w", err)
	}

	sock := nearbysocket.NewSocket(conn, isSender, nearbysocket.LocalEndpoint{
		ID:           localID,
		Name:         cfg.Device.Name,
		EndpointInfo: encodedInfo,
	})

	handshakeStart := time.Now()
	if err := sock.Handshake(ctx); err != nil {
		m.RecordHandshakeError("handshake_failed")
		return fmt.Errorf("handshake: %w", err)
	}
	m.RecordHandshake(time.Since(handshakeStart).Seconds())
	m.RecordSessionStart()

	sessCfg.Logger = logger
	sessCfg.OnStateChange = func(s session.State) {
		logger.Info("session state change", logging.KeyPhase, s.String())
		fmt.Printf("state: %s\n", s)
		switch s {
		case session.StateComplete:
			m.RecordSessionComplete()
		case session.StateFailed:
			m.RecordSessionFailure("failed")
		}
	}

	var ctrl *session.Controller
	if onNegotiated != nil {
		sessCfg.OnNegotiationCompleted = func() {
			pin := ctrl.Pin()
			files := ctrl.Transfers()
			var err error
			if onNegotiated(ctrl.PeerName(), pin, files) {
				err = ctrl.AcceptTransfer()
			} else {
				err = ctrl.RejectTransfer()
			}
			if err != nil {
				logger.Error("accept/reject decision failed", logging.KeyError, err)
			}
		}
	}
	ctrl = session.NewController(sock, isSender, sessCfg)

	runErr := make(chan error, 1)
	go func() { runErr <- sock.Run(ctx) }()

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	fmt.Printf("PIN: %s (confirm it matches on the peer's device)\n", pinStyle.Render(ctrl.Pin()))

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			return err
		case <-ticker.C:
			switch ctrl.State() {
			case session.StateComplete:
				fmt.Println("transfer complete")
				return nil
			case session.StateFailed:
				return fmt.Errorf("transfer failed: %s", ctrl.FailedReason())
			}
		}
	}
}

func serveMetrics(addr string, logger *slog.Logger) *metrics.Metrics {
	m := metrics.Default()
	if addr == "" {
		return m
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", logging.KeyError, err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return m
}

func randomEndpointID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random endpoint id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
