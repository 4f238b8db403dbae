package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
)

// CategorizeFunc runs categorization for one statement.
type CategorizeFunc func(ctx context.Context, statementID string) (categorizer.Result, error)

// CategorizeHandler adapts run to a JobHandler and records its result on the job.
func CategorizeHandler(run CategorizeFunc) JobHandler {
	return func(ctx context.Context, job Job) error {
		cj, ok := job.(*CategorizeStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}
		res, err := run(ctx, cj.StatementID)
		if err != nil {
			return err
		}
		cj.Result = &res
		return nil
	}
}
