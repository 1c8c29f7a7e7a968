package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"matchbook/config"
	"matchbook/domain/orderbook"
	"matchbook/infra/kafka"
	"matchbook/infra/metrics"
	entrywal "matchbook/infra/wal/entry"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/jobs/broadcaster"
	"matchbook/report"
	"matchbook/service"
	"matchbook/snapshot"
	"matchbook/workload"
)

// closers runs deferred cleanup in reverse order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close(log *zap.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var cleanup closers
	defer cleanup.close(log)

	m := metrics.New()

	// ---------------- Journal ----------------

	var journal *entrywal.WAL
	if cfg.Journal.Enabled {
		w, err := entrywal.Open(entrywal.Config{
			Dir:             cfg.Journal.Dir,
			SegmentSize:     cfg.Journal.SegmentSize,
			SegmentDuration: cfg.Journal.SegmentDuration.Duration,
			SyncEveryAppend: cfg.Journal.Sync,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		cleanup.add(w.Close)
		journal = w
	}

	// ---------------- Service ----------------

	svc := service.NewOrderService(service.Options{
		Book: orderbook.Config{
			Capacity: cfg.Book.Capacity,
			MaxPrice: cfg.Book.MaxPrice,
			Debug:    cfg.Book.Debug,
		},
		Journal: journal,
		Metrics: m,
		Logger:  log,
	})

	// ---------------- Recovery ----------------

	var snap *snapshot.Snapshot
	if cfg.Snapshot.Enabled {
		s, err := snapshot.Load(cfg.Snapshot.Dir)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		snap = s
	}
	if snap != nil || journal != nil {
		journalDir := ""
		if journal != nil {
			journalDir = journal.Dir()
		}
		if _, err := svc.Recover(snap, journalDir); err != nil {
			return fmt.Errorf("recover: %w", err)
		}
	}

	// ---------------- Publishers ----------------

	var outbox *exitwal.Outbox
	if cfg.Outbox.Enabled {
		o, err := exitwal.Open(cfg.Outbox.Dir, exitwal.Options{})
		if err != nil {
			return fmt.Errorf("open outbox: %w", err)
		}
		cleanup.add(o.Close)
		outbox = o
		svc.AddPublisher("outbox", o)
	}

	var bc *broadcaster.Broadcaster
	if cfg.Kafka.Enabled {
		switch cfg.Kafka.Client {
		case "kafka-go":
			p := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			cleanup.add(p.Close)
			svc.AddPublisher("kafka", p)
		case "sarama":
			producer, err := broadcaster.NewSyncProducer(cfg.Kafka.Brokers)
			if err != nil {
				return fmt.Errorf("kafka producer: %w", err)
			}
			bc = broadcaster.New(outbox, producer, cfg.Kafka.Topic,
				broadcaster.WithInterval(cfg.Kafka.DrainInterval.Duration),
				broadcaster.WithLogger(log))
			cleanup.add(bc.Close)
		}
	}

	// ---------------- Jobs ----------------

	var snapJob *service.SnapshotJob
	if cfg.Snapshot.Enabled {
		snapJob = svc.NewSnapshotJob(cfg.Snapshot.Dir, cfg.Snapshot.Interval.Duration, outbox)
	}

	gen := workload.NewGenerator(workload.Config{
		Seed:        cfg.Bench.Seed,
		Orders:      cfg.Bench.Orders,
		CancelRatio: cfg.Bench.CancelRatio,
		Batch:       cfg.Bench.Batch,
		MidPrice:    cfg.Bench.MidPrice,
		Spread:      cfg.Bench.Spread,
		MaxShares:   cfg.Bench.MaxShares,
	})
	recorder := report.NewRecorder()
	runner := workload.NewRunner(gen, svc, log)
	runner.Observe = recorder.Record

	g, gctx := errgroup.WithContext(ctx)
	jobsCtx, stopJobs := context.WithCancel(gctx)
	defer stopJobs()

	var res workload.Result
	g.Go(func() error {
		defer stopJobs()
		var err error
		res, err = runner.Run(gctx)
		return err
	})
	if snapJob != nil {
		g.Go(func() error { return snapJob.Run(jobsCtx) })
	}
	if bc != nil {
		g.Go(func() error { return bc.Run(jobsCtx) })
	}
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-jobsCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// ---------------- Results ----------------

	if snapJob != nil {
		if _, err := snapJob.RunOnce(); err != nil {
			return fmt.Errorf("final snapshot: %w", err)
		}
	}
	if err := svc.CheckInvariants(); err != nil {
		return err
	}

	depth := cfg.Bench.Depth
	st := svc.Stats()
	outDir := filepath.Join(cfg.Bench.OutDir, gen.ID.String())
	files := report.Files{
		Summary: report.Summary{
			RunID:    gen.ID.String(),
			Seed:     cfg.Bench.Seed,
			Commands: res.Commands,
			Rejected: res.Rejected,
			Trades:   res.Trades,
			Shares:   res.Shares,
			Resting:  st.Resting,
			Elapsed:  res.Elapsed,
			Ops:      recorder.Stats(),
		},
		Bids:   svc.Depth(orderbook.Buy, depth),
		Asks:   svc.Depth(orderbook.Sell, depth),
		Orders: append(svc.Orders(orderbook.Buy), svc.Orders(orderbook.Sell)...),
		Ledger: svc.Transactions(),
	}
	if err := (report.Formatter{Scale: cfg.Book.TickScale}).WriteDir(outDir, files); err != nil {
		return err
	}

	if outbox != nil {
		counts, err := outbox.Counts()
		if err != nil {
			return fmt.Errorf("outbox counts: %w", err)
		}
		log.Info("outbox state",
			zap.Int("new", counts[exitwal.StateNew]),
			zap.Int("sent", counts[exitwal.StateSent]),
			zap.Int("acked", counts[exitwal.StateAcked]),
			zap.Int("failed", counts[exitwal.StateFailed]))
	}

	log.Info("lobbench finished",
		zap.String("run_id", gen.ID.String()),
		zap.Int("commands", res.Commands),
		zap.Int("trades", res.Trades),
		zap.Int("publish_errors", res.PublishErrors),
		zap.Int("resting", st.Resting),
		zap.Duration("elapsed", res.Elapsed),
		zap.String("out", outDir))
	return nil
}
