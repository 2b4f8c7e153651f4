package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/livemon"
	"github.com/pipelined/livemon/panel"
	"github.com/pipelined/livemon/remote"
)

// textRenderer writes panel snapshots into log. Series are summarized by
// their latest values, frames are logged only with debug level.
type textRenderer struct {
	log   logrus.FieldLogger
	dumps *spew.ConfigState
}

func newTextRenderer(l logrus.FieldLogger) *textRenderer {
	return &textRenderer{
		log: l,
		dumps: &spew.ConfigState{
			Indent:                  "  ",
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		},
	}
}

func (r *textRenderer) Series(name string, opts livemon.DisplayOptions, series [][]remote.Value) error {
	fields := logrus.Fields{"panel": name}
	for i, s := range series {
		key := legend(opts, i)
		if len(s) == 0 {
			fields[key] = nil
			continue
		}
		fields[key] = decode(s[len(s)-1])
	}
	r.log.WithFields(fields).Info(title(name, opts))
	return nil
}

func (r *textRenderer) Scatter(name string, opts livemon.DisplayOptions, points []panel.Points[remote.Value]) error {
	fields := logrus.Fields{"panel": name}
	for i, p := range points {
		fields[legend(opts, i)] = len(p.X)
	}
	r.log.WithFields(fields).Info(title(name, opts))
	return nil
}

func (r *textRenderer) Console(name string, lines []remote.Value) error {
	l := r.log.WithField("panel", name)
	for _, line := range lines {
		switch v := decode(line).(type) {
		case string:
			l.Info(v)
		default:
			l.Info(string(line))
		}
	}
	return nil
}

func (r *textRenderer) Frame(name string, frame remote.Value, meta []remote.Value) error {
	decoded := make([]interface{}, 0, len(meta))
	for _, m := range meta {
		decoded = append(decoded, decode(m))
	}
	l := r.log.WithFields(logrus.Fields{
		"panel": name,
		"bytes": len(frame),
	})
	l.Info("new frame")
	l.Debug(strings.TrimSpace(r.dumps.Sdump(decoded)))
	return nil
}

func title(name string, opts livemon.DisplayOptions) string {
	if opts.Title != "" {
		return opts.Title
	}
	return name
}

func legend(opts livemon.DisplayOptions, i int) string {
	if i < len(opts.Legends) {
		return opts.Legends[i]
	}
	return "series" + strconv.Itoa(i)
}

// decode returns raw value if it's not valid json.
func decode(v remote.Value) interface{} {
	var result interface{}
	if err := json.Unmarshal(v, &result); err != nil {
		return string(v)
	}
	return result
}
