package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/acronis/perfkit/entitydb/logger"
	"github.com/acronis/perfkit/entitydb/persist"
	"github.com/acronis/perfkit/entitydb/pool"
)

// Score is the outcome of a repeated run
type Score struct {
	Workers int
	Seconds float64
	Loops   int64
	Rate    float64
}

// FormatRate formats the rate to 4 significant figures
func (s Score) FormatRate() string {
	if s.Rate == 0.0 {
		return "0"
	}

	var order = math.Floor(math.Log10(math.Abs(s.Rate))) + 1
	var precision = 4 - int(order)
	if precision < 0 {
		precision = 0
	}

	return fmt.Sprintf(fmt.Sprintf("%%.%df", precision), s.Rate)
}

func (s Score) String() string {
	return fmt.Sprintf("loops: %d, workers: %d, seconds: %.3f, rate: %s queries/sec",
		s.Loops, s.Workers, s.Seconds, s.FormatRate())
}

// plannedLoops splits loops over workers, the first loops%workers get one more
func plannedLoops(loops int, workers int) []int {
	var planned = make([]int, workers)
	for i := range planned {
		planned[i] = loops / workers
		if i < loops%workers {
			planned[i]++
		}
	}

	return planned
}

// repeat runs the query cli.Loops times from cli.Workers goroutines, every
// iteration checks a connection out of p and back in
func repeat(ctx context.Context, p *pool.Pool[*persist.Connection], cli CLI, l logger.Logger) (Score, error) {
	var workers = cli.Workers
	if workers < 1 {
		workers = 1
	}

	var done = atomic.NewInt64(0)
	var g, gctx = errgroup.WithContext(ctx)
	var start = time.Now()

	for id, loops := range plannedLoops(cli.Loops, workers) {
		var id, loops = id, loops
		g.Go(func() error {
			for i := 0; i < loops; i++ {
				if err := once(gctx, p, cli); err != nil {
					l.Error("worker # %03d: loop %d: %v", id, i, err)
					return err
				}
				done.Inc()
			}
			l.Debug("worker # %03d: finished %d loops", id, loops)

			return nil
		})
	}

	var err = g.Wait()
	var score = Score{Workers: workers, Seconds: time.Since(start).Seconds(), Loops: done.Load()}
	if score.Seconds > 0 {
		score.Rate = float64(score.Loops) / score.Seconds
	}

	return score, err
}

func once(ctx context.Context, p *pool.Pool[*persist.Connection], cli CLI) error {
	var conn, err = p.Checkout(ctx)
	if err != nil {
		return err
	}

	err = query(ctx, conn, cli, io.Discard)
	if checkinErr := p.Checkin(ctx, conn); err == nil {
		err = checkinErr
	}

	return err
}
