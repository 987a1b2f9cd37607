package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meigma/dicomblob/core"
)

var errNoIndex = errors.New("retrieve: no metadata index configured")

// Resolver maps a resource to the identifiers of the instances it covers.
type Resolver struct {
	index  core.MetadataIndex
	logger *slog.Logger
}

// NewResolver returns a Resolver backed by index.
func NewResolver(index core.MetadataIndex, logger *slog.Logger) *Resolver {
	return &Resolver{index: index, logger: logger}
}

func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Resolve returns the instances selected by res in index order. Instance and
// Frames resolve to their own identifier without consulting the index. No
// matches is an empty slice and a nil error.
func (r *Resolver) Resolve(ctx context.Context, res core.Resource) ([]core.ResourceIdentifier, error) {
	var (
		ids []core.ResourceIdentifier
		err error
	)
	switch v := res.(type) {
	case core.Instance:
		return []core.ResourceIdentifier{v.ID}, nil
	case core.Frames:
		return []core.ResourceIdentifier{v.ID}, nil
	case core.Series:
		ids, err = r.list(ctx, v.StudyUID, v.SeriesUID)
	case core.Study:
		ids, err = r.list(ctx, v.StudyUID, "")
	default:
		return nil, fmt.Errorf("%w: unknown resource %T", core.ErrInvalidRequest, res)
	}
	if err != nil {
		return nil, err
	}
	r.log().Debug("resolved resource", "resource", fmt.Sprintf("%T", res), "instances", len(ids))
	return ids, nil
}

func (r *Resolver) list(ctx context.Context, study, series string) ([]core.ResourceIdentifier, error) {
	if r.index == nil {
		return nil, errNoIndex
	}
	ids, err := r.index.ListInstances(ctx, study, series)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return ids, nil
}
