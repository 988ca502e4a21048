package catalog

import (
	"context"
	"errors"

	"github.com/pierreba/era/core/model"
)

// ErrMaxResultsRequired rejects queries without an explicit result bound.
// The bound is caller-supplied on purpose: a fixed small cap silently starves
// large-scale incidents.
var ErrMaxResultsRequired = errors.New("catalog query requires an explicit positive max results")

// QueryRequest describes a candidate lookup. MaxResults must always be set
// by the caller; the default lives in configuration, not in the catalog.
type QueryRequest struct {
	Capabilities []model.CapabilityCode
	Area         string
	MaxResults   int
}

// Catalog yields candidate resources for allocation. Results are a snapshot;
// staleness and re-query policy belong to the caller.
type Catalog interface {
	Query(ctx context.Context, req QueryRequest) ([]model.ResourceCandidate, error)
}

// Committer is an optional catalog capability: marking resources unavailable
// once a plan holding them is committed. The pipeline type-asserts for it.
type Committer interface {
	MarkUnavailable(ctx context.Context, resourceIDs []string) error
}

// Matches reports whether a candidate can serve a query: deployable, in the
// requested area (when set) and providing at least one required capability.
func Matches(c model.ResourceCandidate, req QueryRequest) bool {
	if !c.Deployable() {
		return false
	}
	if req.Area != "" && c.Area != "" && c.Area != req.Area {
		return false
	}
	if len(req.Capabilities) == 0 {
		return true
	}
	for _, want := range req.Capabilities {
		if c.HasCapability(want) {
			return true
		}
	}
	return false
}
