package customers

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"custquery/internal/domain"
	"custquery/internal/query"
	"custquery/internal/source"
)

// RunReport executes a saved report against a freshly opened source.
//
// The returned result is never nil. On failure its Status is
// domain.StatusError and the error is also returned.
func RunReport(ctx context.Context, r *domain.Report, logger *zap.Logger) (*domain.ReportResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	result := &domain.ReportResult{ReportID: r.ID, Status: domain.StatusRunning}

	fail := func(err error) (*domain.ReportResult, error) {
		result.Status = domain.StatusError
		result.Error = err.Error()
		result.Records, result.Names = nil, nil
		result.Duration = time.Since(start).String()
		logger.Warn("report failed", zap.String("report", r.Name), zap.Error(err))
		return result, err
	}

	match, err := BuildFilter(r.Criteria)
	if err != nil {
		return fail(err)
	}
	dir, err := query.ParseDirection(r.Direction)
	if err != nil {
		return fail(err)
	}
	order, err := Ordering(r.OrderBy, dir)
	if err != nil {
		return fail(err)
	}
	src, err := source.New(r.SourceType, source.Config(r.SourceConfig), logger)
	if err != nil {
		return fail(err)
	}

	build := func(records iter.Seq[domain.Customer]) *query.Query[domain.Customer] {
		counted := func(yield func(domain.Customer) bool) {
			for c := range records {
				result.RowsRead++
				if !yield(c) {
					return
				}
			}
		}
		built := query.From(iter.Seq[domain.Customer](counted)).Where(match)
		if order != nil {
			built = built.OrderBy(order)
		}
		return built
	}

	switch r.Output {
	case domain.ReportOutputNames:
		result.Names, err = source.Query(ctx, src, func(records iter.Seq[domain.Customer]) ([]string, error) {
			return query.Select(build(records), FullName)
		})
		result.RowsMatched = len(result.Names)
	case domain.ReportOutputRecords, "":
		result.Records, err = source.Query(ctx, src, func(records iter.Seq[domain.Customer]) ([]domain.Customer, error) {
			return build(records).ToSlice()
		})
		result.RowsMatched = len(result.Records)
	default:
		err = fmt.Errorf("%w: unknown report output %q", query.ErrInvalidInput, r.Output)
	}
	if err != nil {
		return fail(err)
	}

	result.Status = domain.StatusSuccess
	result.Duration = time.Since(start).String()
	logger.Info("report completed",
		zap.String("report", r.Name),
		zap.Int("rowsRead", result.RowsRead),
		zap.Int("rowsMatched", result.RowsMatched),
		zap.String("duration", result.Duration),
	)
	return result, nil
}
