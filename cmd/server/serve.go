package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/butterfly-api/internal/bot"
	"github.com/Brownie44l1/butterfly-api/internal/handlers"
	"github.com/Brownie44l1/butterfly-api/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP API and web form",
		Args:    cobra.NoArgs,
		RunE:    runServe,
	}
	cmd.Flags().String("port", "", "listen port; overrides PORT")
	cmd.Flags().Int("workers", 0, "model instances; overrides BUTTERFLY_WORKERS")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		e.cfg.Port = p
	}
	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		e.cfg.Workers = n
	}
	e.logger.Debug("configuration", "config", e.cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := e.catalog()
	if err != nil {
		return err
	}
	p, pool, err := e.openPipeline()
	if err != nil {
		return err
	}
	defer pool.Close()

	st, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if !e.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.MaxMultipartMemory = e.cfg.MaxUpload

	handlers.NewHandler(p, handlers.Options{
		Catalog:   catalog,
		History:   st,
		Logger:    e.logger,
		MaxUpload: e.cfg.MaxUpload,
		Timeout:   e.cfg.RequestTimeout,
	}).Register(r, e.cfg.Origins)

	err = web.New(p, st, web.Options{
		Catalog:   catalog,
		Logger:    e.logger,
		MaxUpload: e.cfg.MaxUpload,
		Timeout:   e.cfg.RequestTimeout,
	}).Register(r)
	if err != nil {
		return err
	}

	if n, err := st.CountUsers(ctx); err == nil && n == 0 {
		e.logger.Warn("no web accounts yet; create one with `butterfly user add <name>`")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", e.cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var tg *bot.Bot
	if e.cfg.TelegramToken != "" {
		api, err := tgbotapi.NewBotAPI(e.cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		e.logger.Info("telegram bot enabled", "account", api.Self.UserName)
		tg = bot.New(api, p, bot.Options{
			Catalog:   catalog,
			History:   st,
			Logger:    e.logger,
			MaxUpload: e.cfg.MaxUpload,
			Timeout:   e.cfg.RequestTimeout,
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		info := pool.Info()
		e.logger.Info("server starting", "port", e.cfg.Port, "backend", info.Backend,
			"input", info.InputShape, "output", info.OutputShape, "classes", info.Classes)
		e.logger.Info("endpoint", "route", "GET /health", "about", "health check")
		e.logger.Info("endpoint", "route", "POST /predict", "about", "image upload, form field 'image'")
		e.logger.Info("endpoint", "route", "POST /predict/tensor", "about", "preprocessed 1x224x224x3 tensor")
		e.logger.Info("endpoint", "route", "GET /", "about", "web form, login required")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		e.logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if tg != nil {
		g.Go(func() error { return tg.Run(ctx) })
	}

	return g.Wait()
}
