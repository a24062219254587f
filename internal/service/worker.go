package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/passportlabs/scorer/internal/domain"
	"github.com/passportlabs/scorer/internal/usecase"
)

// JobSource hands out queued rescore work. Dequeue blocks for a bounded
// interval and fails with NotFoundError when nothing arrived.
type JobSource interface {
	Dequeue(ctx context.Context) (domain.RescoreJob, error)
}

// RescoreWorker drains the rescore queue. The lifecycle's conditional claim
// makes processing idempotent, so the queue itself stays fire-and-forget.
type RescoreWorker struct {
	source  JobSource
	scoring *usecase.ScoringUsecase
}

func NewRescoreWorker(source JobSource, scoring *usecase.ScoringUsecase) *RescoreWorker {
	return &RescoreWorker{
		source:  source,
		scoring: scoring,
	}
}

func (w *RescoreWorker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.source.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled) {
				continue
			}
			slog.ErrorContext(
				ctx, "dequeue failed",
				slog.String("error", err.Error()),
				slog.String("module", "worker"),
			)
			continue
		}

		err = w.scoring.ProcessJob(ctx, job)
		if err != nil {
			slog.ErrorContext(
				ctx, "rescore job failed",
				slog.String("error", err.Error()),
				slog.Int64("communityID", job.CommunityID),
				slog.String("address", job.Address),
				slog.String("module", "worker"),
			)
		}
	}
}
