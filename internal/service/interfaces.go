package service

import (
	"context"

	"github.com/BarkinBalci/star-feed-service/internal/dto"
	"github.com/BarkinBalci/star-feed-service/internal/scheduler"
)

// StarServicer defines the read-side operations exposed over HTTP.
type StarServicer interface {
	QueryStars(ctx context.Context, query dto.StarsQuery) (*dto.StarsResponse, error)
	Options(ctx context.Context) (*dto.OptionsResponse, error)
	Status(ctx context.Context) *dto.StatusResponse
	Feed(ctx context.Context) (string, error)
}

// SchedulerStatus is the slice of the scheduler the service reads.
type SchedulerStatus interface {
	Status() scheduler.Snapshot
}
