// Package storage assembles a tiered engine from configuration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gftdcojp/tier-workloads/internal/blob"
	"github.com/gftdcojp/tier-workloads/internal/config"
	"github.com/gftdcojp/tier-workloads/internal/file"
	"github.com/gftdcojp/tier-workloads/internal/lifecycle"
	"github.com/gftdcojp/tier-workloads/internal/memory"
	"github.com/gftdcojp/tier-workloads/internal/meta"
	"github.com/gftdcojp/tier-workloads/internal/metrics"
	"github.com/gftdcojp/tier-workloads/internal/natsobj"
	"github.com/gftdcojp/tier-workloads/internal/tier"
	"github.com/gftdcojp/tier-workloads/internal/types"
	"github.com/gftdcojp/tier-workloads/pkg/natsutil"
	"github.com/gftdcojp/tier-workloads/pkg/s3util"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// Stack is an opened engine together with the resources behind it.
type Stack struct {
	Engine *tier.Engine
	Meta   *meta.BoltStore
	// NATS is nil unless a tier uses the nats backend.
	NATS *nats.Conn
	// Buckets holds the S3 clients of blob tiers keyed by health check name.
	Buckets map[string]metrics.Pinger
}

// Open builds every tier store, opens the catalog and loads the engine.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Stack, err error) {
	s := &Stack{Buckets: make(map[string]metrics.Pinger)}
	var stores [types.NumTiers]tier.TierStore
	defer func() {
		if err != nil {
			for _, st := range stores {
				if st != nil {
					st.Close()
				}
			}
			s.close()
		}
	}()

	var js jetstream.JetStream
	if cfg.UsesNATS() {
		s.NATS, js, err = natsutil.ConnectJetStream(cfg.NATS, logger.Named("nats"))
		if err != nil {
			return nil, err
		}
	}

	var capacity [types.NumTiers]int64
	for _, t := range types.Tiers {
		tc := cfg.Engine.Tiers.ByTier(t)
		log := logger.Named(tc.Backend).With(zap.String("tier", t.String()))

		var st tier.TierStore
		switch tc.Backend {
		case config.BackendMemory:
			st = memory.NewStore(t, log)
		case config.BackendFile:
			st, err = file.NewStore(t, tc.DataDir, file.Options{}, log)
		case config.BackendBlob:
			var client *s3util.Client
			client, err = s3util.NewClient(ctx, tc.Blob)
			if err == nil {
				st = blob.NewStore(client.S3, t, client.Bucket, client.Prefix, log)
				s.Buckets["s3:"+t.String()] = client
			}
		case config.BackendNATS:
			st, err = natsobj.NewStore(ctx, s.NATS, js, t, tc.NATSBucket, log)
		default:
			err = fmt.Errorf("unknown backend %q", tc.Backend)
		}
		if err != nil {
			return nil, fmt.Errorf("opening %s tier: %w", t, err)
		}

		stores[t] = tier.Limited(st, int64(tc.ReadBandwidth), int64(tc.WriteBandwidth))
		capacity[t] = int64(tc.Capacity)
	}

	if dir := filepath.Dir(cfg.Engine.Metadata.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog dir: %w", err)
		}
	}
	s.Meta, err = meta.NewBoltStore(cfg.Engine.Metadata.Path, meta.Options{NoSync: cfg.Engine.Metadata.NoSync}, logger.Named("meta"))
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	n, err := lifecycle.CollectOrphans(ctx, s.Meta, stores, logger.Named("lifecycle"))
	if err != nil {
		return nil, fmt.Errorf("reconciling catalog: %w", err)
	}
	if n > 0 {
		logger.Warn("dropped objects with lost chunks", zap.Int("objects", n))
	}

	s.Engine, err = tier.NewEngine(ctx, tier.EngineConfig{
		Stores:   stores,
		Capacity: capacity,
		Meta:     s.Meta,
		Logger:   logger.Named("engine"),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the engine, the catalog and the NATS connection.
func (s *Stack) Close() error {
	var errs []error
	if s.Engine != nil {
		errs = append(errs, s.Engine.Close())
	}
	errs = append(errs, s.close())
	return errors.Join(errs...)
}

func (s *Stack) close() error {
	var errs []error
	if s.Meta != nil {
		errs = append(errs, s.Meta.Close())
	}
	if s.NATS != nil {
		s.NATS.Close()
	}
	return errors.Join(errs...)
}
