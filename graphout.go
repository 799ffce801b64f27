package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"github.com/aleveille/graphout/config"
	"github.com/aleveille/graphout/metric"
	"github.com/aleveille/graphout/publisher"
)

var (
	// CLI flags
	configPath string
	logLevel   string
	dryRun     bool
	textfile   string
	timeout    time.Duration
)

func init() {
	flag.StringVar(&configPath, "config", "graphout.yaml", "Path to the YAML configuration")
	flag.StringVar(&logLevel, "logLevel", "info", "Log level: \"trace\", \"debug\", \"info\", \"warn\", \"error\", \"fatal\", \"panic\"")
	flag.BoolVar(&dryRun, "dry-run", false, "Print the lines on stdout instead of sending them")
	flag.StringVar(&textfile, "textfile", "", "Write the connection pool metrics to this file, in the prometheus text format")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Upper bound for writing the batch to every writer")
}

type writer struct {
	name string
	pub  publisher.Publisher
}

func main() {
	flag.Parse()

	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid logLevel %q", logLevel)
	}
	log.SetLevel(level)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	samples, err := metric.DecodeSamples(os.Stdin)
	if err != nil {
		log.Fatal(err)
	}

	printConfig(cfg, len(samples))

	registry := metrics.NewRegistry()
	gatherer := prometheus.NewRegistry()

	var writers []writer
	for i, wc := range cfg.Writers {
		if dryRun {
			wc.Type = config.TypeStdout
		}
		w, err := startWriter(wc, cfg, publisher.WithRegistry(registry), publisher.WithRegisterer(gatherer))
		if err != nil {
			log.WithError(err).WithField("writer", i).Error("Skipping writer")
			continue
		}
		writers = append(writers, w)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	failed := 0
	for _, w := range writers {
		if err := w.pub.Write(ctx, cfg.Server, cfg.Query, samples); err != nil {
			log.WithError(err).WithField("writer", w.name).Error("Error writing samples")
			failed++
			continue
		}
		log.WithField("writer", w.name).Infof("Wrote %d samples", len(samples))
	}

	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, gatherer); err != nil {
			log.WithError(err).Error("Error writing the metrics textfile")
		}
	}

	for _, w := range writers {
		if err := w.pub.Stop(); err != nil {
			log.WithError(err).WithField("writer", w.name).Warn("Error stopping writer")
		}
	}

	printStats(registry)
	log.Infof("%d/%d writers succeeded", len(writers)-failed, len(cfg.Writers))
}

func startWriter(wc config.WriterConfig, cfg *config.Config, opts ...publisher.Option) (writer, error) {
	name := wc.Type
	if wc.Type == config.TypeGraphite {
		name = wc.Address()
	}

	pub, err := publisher.New(wc, opts...)
	if err != nil {
		return writer{}, err
	}
	if err := pub.ValidateSetup(cfg.Server, cfg.Query); err != nil {
		return writer{}, err
	}
	if err := pub.Start(); err != nil {
		return writer{}, err
	}
	return writer{name: name, pub: pub}, nil
}

func printConfig(cfg *config.Config, samples int) {
	log.Info("Configuration: ")
	log.Infof("\tServer: %s", cfg.Server)
	if cfg.Query.Obj != "" {
		log.Infof("\tQuery: %s", cfg.Query.Obj)
	}
	if dryRun {
		log.Info("\tDRY-RUN: lines are printed, not sent")
	}
	log.Infof("\t%d writers:", len(cfg.Writers))
	for _, w := range cfg.Writers {
		if w.Type == config.TypeGraphite {
			log.Infof("\t  - graphite %s (pool of %d)", w.Address(), w.PoolSize)
		} else {
			log.Infof("\t  - %s", w.Type)
		}
	}
	log.Infof("\t%d samples read", samples)
}

func printStats(registry metrics.Registry) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	registry.Each(func(name string, m interface{}) {
		switch m := m.(type) {
		case metrics.Counter:
			log.Debugf("%s: %d", name, m.Count())
		case metrics.Timer:
			s := m.Snapshot()
			log.Debugf("%s: count=%d max=%s mean=%s", name, s.Count(), time.Duration(s.Max()), time.Duration(int64(s.Mean())))
		}
	})
}
