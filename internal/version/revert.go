// internal/version/revert.go
package version

import (
	"context"
	"fmt"

	"devopus/internal/session"
)

// PointerStore records which version a project is currently displaying.
type PointerStore interface {
	SetCurrentVersion(projectID, versionID string) error
}

// Revert fetches a version and replaces the session's active snapshot with
// it verbatim. No re-normalized form is stored — normalization is always
// recomputed at render time from whatever the session holds. Planning
// artifacts (plan, architecture, diagram, review) survive untouched so the
// user can keep following up, and history itself is never modified.
func (c *Client) Revert(ctx context.Context, versionID string, sess *session.Session, pointers PointerStore) (*Version, error) {
	v, err := c.Get(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}

	if err := sess.RestoreSnapshot(v.CodeSnapshot); err != nil {
		return nil, fmt.Errorf("revert: %w", err)
	}

	if pointers != nil && v.ProjectID != "" {
		if err := pointers.SetCurrentVersion(v.ProjectID, v.ID); err != nil {
			// Pointer persistence is a convenience; the revert itself stands.
			return v, fmt.Errorf("revert applied, pointer not saved: %w", err)
		}
	}
	return v, nil
}
