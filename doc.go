/*
Package livemon allows to build live monitors for streaming telemetry.

Concept

Producers write values into buffers at their own pace, a single
scheduler goroutine polls the buffers periodically and renders their
snapshots. Producer and consumer never block each other for longer than
a single buffer operation.

Buffers

Buffer is a thread-safe store with one of two modes:

    Accumulate - values are appended, the oldest are evicted when capacity is exceeded;
    LatestOnly - every replace overwrites the whole content.

Buffers of a single panel are created together as a Group. Closing a
buffer is visible to producers as ErrChannelClosed, this is how they learn
that monitor is gone.

Scheduler

Scheduler runs registered callbacks with fixed periods:

    s := livemon.NewScheduler()
    h, err := s.Register(func(ctx context.Context) error {
        values, err := b.Get()
        if err != nil {
            return err
        }
        return render(values)
    }, livemon.PeriodMS(100))
    if err != nil {
        // handle error
    }
    go s.Run(ctx)

Callbacks never overlap. If callback takes longer than its period, the
missed ticks are skipped and the next one runs as soon as possible.
Callback errors and panics are logged and don't stop the scheduler,
ErrChannelClosed cancels the registration.

Panels and remote producers are provided by panel and remote packages.
*/
package livemon
