package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pipelined/livemon"
	"github.com/pipelined/livemon/log"
	"github.com/pipelined/livemon/panel"
	"github.com/pipelined/livemon/remote"
)

const shutdownTimeout = 5 * time.Second

type serveCommand struct {
	config string
	addr   string
}

func (cmd *serveCommand) Name() string {
	return "serve"
}

func (cmd *serveCommand) Help() string {
	return "Expose panels to remote producers and render them as text"
}

func (cmd *serveCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.config, "config", "monitor.yml", "path to monitor config")
	fs.StringVar(&cmd.addr, "addr", ":8080", "address to listen for producers")
}

func (cmd *serveCommand) Run() error {
	cfg, err := livemon.LoadConfig(cmd.config)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, cmd.addr)
}

// serve runs monitor until context is done.
func serve(ctx context.Context, cfg *livemon.MonitorConfig, addr string) error {
	logger := log.GetLogger()
	s := livemon.NewScheduler(livemon.WithName("livemon"), livemon.WithLogger(logger))
	srv := remote.NewServer(remote.WithLogger(logger))
	r := newTextRenderer(logger)

	for _, pc := range cfg.Panels {
		p, err := panel.New[remote.Value](pc, r)
		if err != nil {
			return err
		}
		defer p.Close()
		if err := srv.Expose(p.Name(), p.Group()); err != nil {
			return err
		}
		if _, err := p.Attach(s); err != nil {
			return fmt.Errorf("panel %q: %w", p.Name(), err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)
	mux.Handle("/debug/vars", expvar.Handler())
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx)
	})
	g.Go(func() error {
		logger.Infof("%s: listening on %s", cfg.Title, addr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// websocket connections are hijacked, they're not closed by Shutdown
		if err := srv.Close(); err != nil {
			logger.Warnf("close producers: %v", err)
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}
