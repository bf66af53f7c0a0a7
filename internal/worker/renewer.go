package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"pacotes-bot/internal/metrics"
	"pacotes-bot/internal/packages"
)

const (
	DefaultInterval     = time.Hour
	DefaultInitialDelay = 30 * time.Second
)

// Ticker runs one poll pass over the packages.
type Ticker interface {
	Tick(ctx context.Context) packages.TickResult
}

type Options struct {
	Interval     time.Duration
	InitialDelay time.Duration
	// TickTimeout bounds a scheduled tick; zero means the interval.
	TickTimeout time.Duration
}

// Renewer drives the renewal poll: a first tick shortly after start, then one
// every interval. A tick that finds the previous one still running is skipped.
type Renewer struct {
	store   Ticker
	cron    *cron.Cron
	opts    Options
	running atomic.Bool
	wg      sync.WaitGroup

	mu           sync.Mutex
	stopped      bool
	initialTimer *time.Timer
}

func NewRenewer(store Ticker, opts Options) *Renewer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.InitialDelay < 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = opts.Interval
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Renewer{
		store: store,
		cron:  c,
		opts:  opts,
	}
}

// Start schedules the poll and returns immediately.
func (r *Renewer) Start() {
	r.cron.Schedule(cron.Every(r.opts.Interval), cron.FuncJob(r.runScheduled))

	r.mu.Lock()
	r.initialTimer = time.AfterFunc(r.opts.InitialDelay, r.runScheduled)
	r.mu.Unlock()

	r.cron.Start()
	log.Info().
		Dur("interval", r.opts.Interval).
		Dur("initial_delay", r.opts.InitialDelay).
		Msg("Renewal worker started")
}

// Stop cancels future ticks. The returned context is done once any scheduled
// tick in progress has finished.
func (r *Renewer) Stop() context.Context {
	r.mu.Lock()
	r.stopped = true
	if r.initialTimer != nil {
		r.initialTimer.Stop()
	}
	r.mu.Unlock()

	cronCtx := r.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		r.wg.Wait()
		cancel()
	}()
	return ctx
}

// runScheduled is the body of both the first-tick timer and the cron job.
// Registration with wg happens under mu so nothing is added once Stop has
// started waiting.
func (r *Renewer) runScheduled() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.TickTimeout)
	defer cancel()
	r.RunOnce(ctx)
}

// RunOnce runs a tick now unless one is already in progress, in which case
// it returns false without doing anything.
func (r *Renewer) RunOnce(ctx context.Context) (packages.TickResult, bool) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.RecordSkippedTick()
		log.Warn().Msg("Previous renewal tick still running, skipping this one")
		return packages.TickResult{}, false
	}
	defer r.running.Store(false)

	start := time.Now()
	log.Debug().Msg("Running renewal tick")
	result := r.store.Tick(ctx)
	elapsed := time.Since(start)
	metrics.RecordTick(elapsed)

	log.Info().
		Int("renewed", result.Renewed).
		Int("expired", result.Expired).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("elapsed", elapsed).
		Msg("Renewal tick finished")
	return result, true
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
