// Package jobs contains the scheduled maintenance jobs of the progression hub.
package jobs

import (
	"context"
	"fmt"

	"github.com/k9quest/progression-hub/internal/domain/profile"
)

const defaultPageSize = 200

// forEachUserPage walks all profile IDs in pages ordered by ID.
func forEachUserPage(ctx context.Context, profiles profile.Repository, pageSize int, fn func(ids []string) error) error {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := profiles.ListUserIDs(ctx, after, pageSize)
		if err != nil {
			return fmt.Errorf("failed to list users after %q: %w", after, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := fn(ids); err != nil {
			return err
		}
		if len(ids) < pageSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}
