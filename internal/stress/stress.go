// Package stress hammers a SpinLock with concurrent readers and writers,
// checks that no exclusive holder ever overlaps another holder, and checks
// the recorded history for linearizability with porcupine.
package stress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/anishathalye/porcupine"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/llxisdsh/spinlock"
)

// Config describes one stress run.
type Config struct {
	Readers int
	Writers int
	// Ops is the number of operations each worker attempts.
	Ops int
	// TryRatio is the fraction of operations that use TryRead/TryWrite.
	TryRatio float64
	// PanicEvery makes each writer panic inside its critical section on
	// every PanicEvery-th write. 0 disables injection.
	PanicEvery int
	// Check runs the porcupine linearizability check on the history.
	Check bool
	Seed  uint64
}

// DefaultConfig is the configuration used when no flags are given.
var DefaultConfig = Config{
	Readers:  8,
	Writers:  2,
	Ops:      2000,
	TryRatio: 0.2,
	Check:    true,
	Seed:     1,
}

func (c Config) Validate() error {
	switch {
	case c.Readers < 0 || c.Writers < 0:
		return errors.New("stress: negative worker count")
	case c.Readers+c.Writers == 0:
		return errors.New("stress: no workers")
	case c.Ops <= 0:
		return errors.New("stress: ops must be positive")
	case c.TryRatio < 0 || c.TryRatio > 1:
		return fmt.Errorf("stress: try ratio %v not in [0, 1]", c.TryRatio)
	case c.PanicEvery < 0:
		return errors.New("stress: panic-every must not be negative")
	}
	return nil
}

// Report summarizes a run.
type Report struct {
	Reads      int64
	Writes     int64
	WouldBlock int64
	Poisoned   int64
	Panics     int64
	// Overlaps counts observations that broke mutual exclusion.
	Overlaps     int64
	Checked      bool
	Linearizable bool
	Elapsed      time.Duration
}

// OK reports whether the run found no violation.
func (r Report) OK() bool {
	return r.Overlaps == 0 && (!r.Checked || r.Linearizable)
}

var errInjected = errors.New("stress: injected writer panic")

// monitor tracks how many goroutines are inside a critical section.
type monitor struct {
	readers  atomic.Int32
	writers  atomic.Int32
	overlaps atomic.Int64
}

func (m *monitor) enterRead() {
	m.readers.Inc()
	if m.writers.Load() != 0 {
		m.overlaps.Inc()
	}
}

func (m *monitor) exitRead() {
	m.readers.Dec()
}

func (m *monitor) enterWrite() {
	if m.writers.Inc() != 1 || m.readers.Load() != 0 {
		m.overlaps.Inc()
	}
}

func (m *monitor) exitWrite() {
	m.writers.Dec()
}

type worker struct {
	id    int
	cfg   Config
	lock  *spinlock.SpinLock[int64]
	mon   *monitor
	rng   *rand.Rand
	start time.Time

	ops        []porcupine.Operation
	reads      int64
	writes     int64
	wouldBlock int64
	poisoned   int64
	panics     int64
}

func (w *worker) now() int64 {
	return int64(time.Since(w.start))
}

func (w *worker) record(in registerInput, out registerOutput, call int64) {
	w.ops = append(w.ops, porcupine.Operation{
		ClientId: w.id,
		Input:    in,
		Call:     call,
		Output:   out,
		Return:   w.now(),
	})
}

// observe classifies an acquisition error. Contention and poison are
// expected outcomes, anything else aborts the run.
func (w *worker) observe(err error) error {
	switch {
	case errors.Is(err, spinlock.ErrWouldBlock):
		w.wouldBlock++
	case errors.Is(err, spinlock.ErrPoisoned):
		w.poisoned++
	default:
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	return nil
}

func (w *worker) read(i int) error {
	call := w.now()
	var (
		g   *spinlock.ReadGuard[int64]
		err error
	)
	if w.rng.Float64() < w.cfg.TryRatio {
		g, err = w.lock.TryRead()
	} else if i%2 == 0 {
		g, err = w.lock.Read()
	} else {
		var v int64
		err = w.lock.View(func(x int64) error {
			w.mon.enterRead()
			v = x
			w.mon.exitRead()
			return nil
		})
		if err != nil {
			return w.observe(err)
		}
		w.reads++
		w.record(registerInput{}, registerOutput{value: v}, call)
		return nil
	}
	if err != nil {
		return w.observe(err)
	}
	w.mon.enterRead()
	v := g.Get()
	w.mon.exitRead()
	g.Unlock()
	w.reads++
	w.record(registerInput{}, registerOutput{value: v}, call)
	return nil
}

func (w *worker) write(i int) error {
	v := int64(w.id)*int64(w.cfg.Ops) + int64(i) + 1
	if w.cfg.PanicEvery > 0 && (i+1)%w.cfg.PanicEvery == 0 {
		return w.panickingWrite(v)
	}
	call := w.now()
	var (
		g   *spinlock.WriteGuard[int64]
		err error
	)
	if w.rng.Float64() < w.cfg.TryRatio {
		g, err = w.lock.TryWrite()
	} else if i%2 == 0 {
		g, err = w.lock.Write()
	} else {
		err = w.lock.Update(func(x *int64) error {
			w.mon.enterWrite()
			*x = v
			w.mon.exitWrite()
			return nil
		})
		if err != nil {
			return w.observe(err)
		}
		w.writes++
		w.record(registerInput{write: true, value: v}, registerOutput{}, call)
		return nil
	}
	if err != nil {
		return w.observe(err)
	}
	w.mon.enterWrite()
	g.Set(v)
	w.mon.exitWrite()
	g.Unlock()
	w.writes++
	w.record(registerInput{write: true, value: v}, registerOutput{}, call)
	return nil
}

// panickingWrite updates the register and panics while still holding the
// exclusive guard, which poisons the lock. The panic stops here.
func (w *worker) panickingWrite(v int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.panics++
		}
	}()
	g, err := w.lock.Write()
	if err != nil {
		return w.observe(err)
	}
	defer g.Unlock()
	w.mon.enterWrite()
	g.Set(v)
	w.mon.exitWrite()
	panic(errInjected)
}

// Run executes cfg against a fresh SpinLock and returns what it observed.
// A run that observes a violation still returns a nil error; callers
// inspect Report.OK.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("stress run starting",
		"readers", cfg.Readers, "writers", cfg.Writers, "ops", cfg.Ops,
		"try_ratio", cfg.TryRatio, "panic_every", cfg.PanicEvery)

	lock := spinlock.New(int64(0))
	mon := &monitor{}
	start := time.Now()
	workers := make([]*worker, cfg.Readers+cfg.Writers)
	eg, ctx := errgroup.WithContext(ctx)
	for id := range workers {
		w := &worker{
			id:    id,
			cfg:   cfg,
			lock:  lock,
			mon:   mon,
			rng:   rand.New(rand.NewPCG(cfg.Seed, uint64(id))),
			start: start,
		}
		workers[id] = w
		isWriter := id >= cfg.Readers
		eg.Go(func() error {
			for i := range cfg.Ops {
				if err := ctx.Err(); err != nil {
					return err
				}
				var err error
				if isWriter {
					err = w.write(i)
				} else {
					err = w.read(i)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Report{}, fmt.Errorf("stress: %w", err)
	}

	rep := Report{
		Overlaps: mon.overlaps.Load(),
		Elapsed:  time.Since(start),
	}
	var history []porcupine.Operation
	for _, w := range workers {
		rep.Reads += w.reads
		rep.Writes += w.writes
		rep.WouldBlock += w.wouldBlock
		rep.Poisoned += w.poisoned
		rep.Panics += w.panics
		history = append(history, w.ops...)
	}
	logger.Info("stress run finished",
		"reads", rep.Reads, "writes", rep.Writes, "would_block", rep.WouldBlock,
		"poisoned", rep.Poisoned, "panics", rep.Panics, "overlaps", rep.Overlaps,
		"elapsed", rep.Elapsed, "lock", lock.String())

	if cfg.Check {
		rep.Checked = true
		rep.Linearizable = porcupine.CheckOperations(Model, history)
		logger.Info("linearizability check", "operations", len(history), "ok", rep.Linearizable)
	}
	if rep.Overlaps != 0 {
		logger.Error("mutual exclusion violated", "overlaps", rep.Overlaps)
	}
	return rep, nil
}
