package search

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ca-srg/halalfinder/internal/types"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DetailsProvider fetches place details
type DetailsProvider interface {
	PlaceDetails(ctx context.Context, placeID string, fields []string) (*types.PlaceDetails, error)
}

var phoneFields = []string{"place_id", "formatted_phone_number", "international_phone_number"}

// Enricher adds phone numbers to ranked results
type Enricher struct {
	details     DetailsProvider
	concurrency int
	logger      *log.Logger
}

// NewEnricher creates an enricher issuing at most concurrency detail requests at a time
func NewEnricher(details DetailsProvider, concurrency int, logger *log.Logger) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Enricher{details: details, concurrency: concurrency, logger: logger}
}

// Enrich issues one detail request per entry. A failed request leaves that
// entry without a phone number; the batch itself never fails. Order is kept.
func (e *Enricher) Enrich(ctx context.Context, entries []types.ResultEntry) []types.ResultEntry {
	ctx, span := searchTracer.Start(ctx, "search.enrich")
	defer span.End()

	out := make([]types.ResultEntry, len(entries))
	copy(out, entries)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)

	failed := make([]bool, len(out))
	for i := range out {
		if out[i].Phone != "" {
			continue
		}
		group.Go(func() error {
			details, err := e.details.PlaceDetails(groupCtx, out[i].ID, phoneFields)
			if err == nil && details == nil {
				err = fmt.Errorf("no details returned")
			}
			if err != nil {
				failed[i] = true
				e.logger.Printf("Phone lookup failed for %s: %v", out[i].ID, err)
				return nil
			}
			if details.Phone != "" {
				out[i].Phone = details.Phone
			} else {
				out[i].Phone = details.InternationalPhone
			}
			return nil
		})
	}
	_ = group.Wait()

	failures := 0
	for _, f := range failed {
		if f {
			failures++
		}
	}
	span.SetAttributes(
		attribute.Int("search.enrich.entries", len(out)),
		attribute.Int("search.enrich.failures", failures),
	)
	return out
}
