package main

import (
	"bytes"
	"context"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pipelined/livemon"
	"github.com/pipelined/livemon/log"
	"github.com/pipelined/livemon/remote"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInit(t *testing.T) {
	// check if commands are registered
	assert.Equal(t, 2, len(commands))
}

func TestUsage(t *testing.T) {
	tests := []struct {
		args     []string
		expected int
	}{
		{args: []string{"livemon"}, expected: errorExitCode},
		{args: []string{"livemon", "unknown"}, expected: errorExitCode},
		{args: []string{"livemon", "produce"}, expected: errorExitCode},
		{args: []string{"livemon", "produce", "-series", "2"}, expected: errorExitCode},
		{args: []string{"livemon", "serve", "-config", "missing.yml"}, expected: errorExitCode},
	}
	for _, test := range tests {
		var out bytes.Buffer
		c := cli{args: test.args, out: &out}
		assert.Equal(t, test.expected, c.run(), strings.Join(test.args, " "))
		assert.NotEmpty(t, out.String())
	}
}

func TestProduceValidate(t *testing.T) {
	cmd := produceCommand{group: "sensors", series: 0, interval: 0}
	err := cmd.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-series")
	assert.Contains(t, err.Error(), "-interval")

	cmd = produceCommand{group: "sensors", series: 2, interval: time.Second}
	assert.NoError(t, cmd.Validate())
}

func TestProduce(t *testing.T) {
	g, err := livemon.NewGroup[remote.Value](2, livemon.Accumulate, 100)
	require.NoError(t, err)
	s := remote.NewServer(remote.WithLogger(log.Discard()))
	require.NoError(t, s.Expose("sensors", g))
	srv := httptest.NewServer(s)
	defer func() {
		assert.NoError(t, s.Close())
		srv.Close()
	}()

	p, err := remote.Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), remote.WithLogger(log.Discard()))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- produce(ctx, []*remote.Writer[float64]{
			remote.NewWriter[float64](p, "sensors", 0),
			remote.NewWriter[float64](p, "sensors", 1),
		}, time.Millisecond, rand.New(rand.NewSource(1)))
	}()
	b, _ := g.At(1)
	assert.Eventually(t, func() bool {
		n, err := b.Len()
		return err == nil && n >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	// closed panel stops producer
	g.Close()
	err = produce(context.Background(), []*remote.Writer[float64]{
		remote.NewWriter[float64](p, "sensors", 0),
	}, time.Millisecond, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, livemon.ErrChannelClosed)
}

func TestTextRenderer(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := newTextRenderer(logger)

	require.NoError(t, r.Series("sensors", livemon.DisplayOptions{Legends: []string{"current", "target"}}, [][]remote.Value{
		{remote.Value("1.5"), remote.Value("2.5")},
		{},
	}))
	e := hook.LastEntry()
	assert.Equal(t, "sensors", e.Message)
	assert.Equal(t, 2.5, e.Data["current"])
	assert.Nil(t, e.Data["target"])

	hook.Reset()
	require.NoError(t, r.Console("log", []remote.Value{remote.Value(`"started"`), remote.Value(`{"level":1}`)}))
	require.Len(t, hook.Entries, 2)
	assert.Equal(t, "started", hook.Entries[0].Message)
	assert.Equal(t, `{"level":1}`, hook.Entries[1].Message)

	hook.Reset()
	require.NoError(t, r.Frame("camera", remote.Value(`"frame"`), []remote.Value{remote.Value(`"640x480"`)}))
	require.Len(t, hook.Entries, 2)
	assert.Equal(t, "new frame", hook.Entries[0].Message)
	assert.Equal(t, 7, hook.Entries[0].Data["bytes"])
	assert.Contains(t, hook.Entries[1].Message, "640x480")
}
