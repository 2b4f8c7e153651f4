package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pipelined/livemon"
	"github.com/pipelined/livemon/log"
	"github.com/pipelined/livemon/remote"
)

type produceCommand struct {
	url      string
	group    string
	series   int
	interval time.Duration
}

func (cmd *produceCommand) Name() string {
	return "produce"
}

func (cmd *produceCommand) Help() string {
	return "Push random walk telemetry into remote series panel"
}

func (cmd *produceCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.url, "url", "ws://localhost:8080/ws", "monitor address")
	fs.StringVar(&cmd.group, "group", "", "panel to write into (required)")
	fs.IntVar(&cmd.series, "series", 1, "number of series to produce")
	fs.DurationVar(&cmd.interval, "interval", time.Second, "interval between pushes")
}

func (cmd *produceCommand) Validate() error {
	var message string
	if cmd.group == "" {
		message = message + "Missing -group required flag\n"
	}
	if cmd.series <= 0 {
		message = message + fmt.Sprintf("Invalid -series value %d\n", cmd.series)
	}
	if cmd.interval <= 0 {
		message = message + fmt.Sprintf("Invalid -interval value %v\n", cmd.interval)
	}
	if message != "" {
		return errors.New(message)
	}
	return nil
}

func (cmd *produceCommand) Run() error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.GetLogger()
	p, err := remote.Dial(ctx, cmd.url, remote.WithLogger(logger))
	if err != nil {
		return err
	}
	defer p.Close()

	writers := make([]*remote.Writer[float64], cmd.series)
	for i := range writers {
		writers[i] = remote.NewWriter[float64](p, cmd.group, i)
	}
	err = produce(ctx, writers, cmd.interval, rand.New(rand.NewSource(time.Now().UnixNano())))
	if errors.Is(err, livemon.ErrChannelClosed) {
		logger.Infof("monitor closed %s", cmd.group)
		return nil
	}
	return err
}

// produce pushes random walk into every writer until context is done or
// push fails.
func produce(ctx context.Context, writers []*remote.Writer[float64], interval time.Duration, rnd *rand.Rand) error {
	values := make([]float64, len(writers))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for i, w := range writers {
			values[i] += rnd.Float64() - 0.5
			if err := w.Push(values[i]); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
