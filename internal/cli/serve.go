package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ebbtide-net/ebbtide/internal/api"
	"github.com/ebbtide-net/ebbtide/internal/auth"
	"github.com/ebbtide-net/ebbtide/internal/domain"
	"github.com/ebbtide-net/ebbtide/internal/infra/memstore"
	"github.com/ebbtide-net/ebbtide/internal/infra/sqlite"
	"github.com/ebbtide-net/ebbtide/internal/session"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("no-metrics", false, "Disable the /metrics endpoint")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the timer daemon",
	Long: `Run the Ebbtide daemon: it owns the document store, resolves an identity
(anonymous until a sign-in upgrades it), and serves the timer API.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var store domain.Store
	switch cfg.Store.Driver {
	case "memory":
		store = memstore.New()
	case "sqlite", "":
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		store = db
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	authSvc := auth.New(store, auth.TokenAuthenticator{})
	sess := session.New(store, authSvc, session.Config{
		FocusSeconds: cfg.Timer.FocusSeconds,
		RelaxSeconds: cfg.Timer.RelaxSeconds,
		Retention:    time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
	})
	defer sess.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	srv := api.NewServer(sess)
	defer srv.Close()
	if noMetrics, _ := cmd.Flags().GetBool("no-metrics"); !noMetrics {
		srv.EnableMetrics()
	}

	httpSrv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: srv.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("ebbtide: serving on %s (store driver %s)", cfg.Addr(), cfg.Store.Driver)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
