package escrowd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Job asks the background loop to re-reconcile one address's listing.
type Job struct {
	CreatedAt time.Time `json:"created_at"`
	Owner     string    `json:"owner"`
}

// HandlePendingJobs drains refresh jobs until the context ends. Jobs
// carry a TTL, so a worker outage just lets them lapse; nothing is
// retried automatically.
func (s *Server) HandlePendingJobs(ctx context.Context) error {
	for {
		jobs, err := ListJobs(s.db)
		if err != nil {
			slog.Error("list jobs failed", slog.Any("err", err))
			return err
		}

		for _, job := range jobs {
			if err := s.handleJob(ctx, job); err != nil {
				slog.Error("handle refresh job failed", "owner", job.Owner, slog.Any("err", err))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *Server) handleJob(ctx context.Context, job *Job) error {
	slog.Info("handle refresh job", "owner", job.Owner, slog.Time("created_at", job.CreatedAt))

	if _, err := s.RefreshListing(ctx, job.Owner); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return deleteJob(txn, job.Owner)
	})
}

// RefreshListing reruns the full reconciliation for one address and
// caches the result. Concurrent callers for the same address collapse
// into a single pass.
func (s *Server) RefreshListing(ctx context.Context, owner string) (*Listing, error) {
	v, err, _ := s.sf.Do(owner, func() (interface{}, error) {
		records, err := s.reconciler.Reconcile(ctx, owner)
		if err != nil {
			return nil, err
		}

		listing := &Listing{
			Owner:     owner,
			Escrows:   records,
			UpdatedAt: time.Now(),
		}

		if err := s.db.Update(func(txn *badger.Txn) error {
			return saveListing(txn, listing, s.cfg.ListingTTL)
		}); err != nil {
			return nil, err
		}

		return listing, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*Listing), nil
}

func (s *Server) enqueueRefresh(owner string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return saveJob(txn, &Job{CreatedAt: time.Now(), Owner: owner}, 5*time.Minute)
	})

	if err != nil {
		slog.Error("save refresh job failed", "owner", owner, slog.Any("err", err))
	}
}
