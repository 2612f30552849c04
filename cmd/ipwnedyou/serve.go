package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shii9/ipwnedyou/internal/auth"
	"github.com/shii9/ipwnedyou/internal/server"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.Server.ListenAddr = listenAddr
		}
		a, err := newApp(cfg, log)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.Paths.Uploads, 0755); err != nil {
			return errors.Wrap(err, "create uploads directory")
		}

		srv := server.New(server.Deps{
			Checker:           auth.NewChecker(cfg.Auth.Username, cfg.Auth.Password),
			Sessions:          newSessionStore(cfg),
			Domains:           a.domains,
			IPs:               a.ips,
			Images:            a.images,
			Reports:           a.reports,
			UploadDir:         cfg.Paths.Uploads,
			MaxUploadBytes:    cfg.Upload.MaxBytes,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
			SecureCookie:      cfg.Server.SecureCookie,
		}, log)

		httpSrv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		fmt.Print(banner)
		fmt.Printf("✓ Server starting on http://%s\n\n", cfg.Server.ListenAddr)
		fmt.Printf("📁 Uploads: %s\n", cfg.Paths.Uploads)
		fmt.Printf("📁 Reports: %s\n", a.reports.Dir())
		fmt.Printf("⚙️  Max Upload Size: %dMB\n", cfg.Upload.MaxBytes/(1024*1024))
		fmt.Printf("⚙️  Session Timeout: %d minutes\n", cfg.Server.SessionLifetime/60)

		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.ListenAndServe() }()
		log.Info("listening", zap.String("addr", cfg.Server.ListenAddr))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return errors.Wrap(httpSrv.Shutdown(ctx), "shutdown")
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "server error")
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides server.listen_addr)")
}
