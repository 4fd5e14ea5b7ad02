// Package targets resolves operator and manager targets to concrete user IDs.
package targets

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/confops/ticketd/pkg/models"
	"github.com/confops/ticketd/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 5 * time.Minute

// Resolver turns targets into user ID lists via the directory. Label
// memberships can be cached in Redis, cache failures fall through to the
// directory so a broken cache never blocks ticket processing.
type Resolver struct {
	directory persistence.Directory
	cache     *redis.Client
	ttl       time.Duration
	logger    *slog.Logger
}

func NewResolver(directory persistence.Directory, logger *slog.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		ttl:       defaultCacheTTL,
		logger:    logger.With("module", "targets"),
	}
}

// WithCache enables Redis caching of label memberships. A zero ttl keeps the default.
func (r *Resolver) WithCache(client *redis.Client, ttl time.Duration) *Resolver {
	r.cache = client
	if ttl > 0 {
		r.ttl = ttl
	}

	return r
}

// Resolve returns the user IDs a target designates. A none target resolves to
// an empty list.
func (r *Resolver) Resolve(ctx context.Context, target models.Target) ([]string, error) {
	switch target.Kind {
	case models.TargetUser:
		if target.UserID == nil {
			return nil, nil
		}

		return []string{*target.UserID}, nil
	case models.TargetLabel:
		if target.LabelID == nil {
			return nil, nil
		}

		return r.labelMembers(ctx, *target.LabelID)
	case models.TargetNone:
		return nil, nil
	}

	return nil, nil
}

// ResolveAll returns the deduplicated union of every target's users, keeping
// first-seen order.
func (r *Resolver) ResolveAll(ctx context.Context, targetList []models.Target) ([]string, error) {
	seen := make(map[string]bool)
	users := make([]string, 0)

	for _, target := range targetList {
		resolved, err := r.Resolve(ctx, target)
		if err != nil {
			return nil, err
		}

		for _, userID := range resolved {
			if seen[userID] {
				continue
			}

			seen[userID] = true

			users = append(users, userID)
		}
	}

	return users, nil
}

// Allows reports whether the user is designated by the target.
func (r *Resolver) Allows(ctx context.Context, target models.Target, userID string) (bool, error) {
	switch target.Kind {
	case models.TargetUser:
		return target.UserID != nil && *target.UserID == userID, nil
	case models.TargetLabel:
		if target.LabelID == nil {
			return false, nil
		}

		if r.cache != nil {
			members, ok := r.cachedMembers(ctx, *target.LabelID)
			if ok {
				for _, member := range members {
					if member == userID {
						return true, nil
					}
				}

				return false, nil
			}
		}

		return r.directory.UserHasLabel(ctx, userID, *target.LabelID)
	case models.TargetNone:
		return false, nil
	}

	return false, nil
}

// AllowsAny reports whether the user is designated by any of the targets.
func (r *Resolver) AllowsAny(ctx context.Context, targetList []models.Target, userID string) (bool, error) {
	for _, target := range targetList {
		allowed, err := r.Allows(ctx, target, userID)
		if err != nil {
			return false, err
		}

		if allowed {
			return true, nil
		}
	}

	return false, nil
}

func (r *Resolver) labelMembers(ctx context.Context, labelID string) ([]string, error) {
	if r.cache != nil {
		if members, ok := r.cachedMembers(ctx, labelID); ok {
			return members, nil
		}
	}

	users, err := r.directory.UsersByLabel(ctx, labelID)
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(users))
	for _, user := range users {
		members = append(members, user.ID)
	}

	r.storeMembers(ctx, labelID, members)

	return members, nil
}

func cacheKey(labelID string) string {
	return "ticketd:label:" + labelID
}

func (r *Resolver) cachedMembers(ctx context.Context, labelID string) ([]string, bool) {
	payload, err := r.cache.Get(ctx, cacheKey(labelID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.WarnContext(ctx, "label cache read failed", "label_id", labelID, "error", err)
		}

		return nil, false
	}

	var members []string
	if err := json.Unmarshal(payload, &members); err != nil {
		r.logger.WarnContext(ctx, "label cache entry corrupt", "label_id", labelID, "error", err)

		return nil, false
	}

	return members, true
}

func (r *Resolver) storeMembers(ctx context.Context, labelID string, members []string) {
	if r.cache == nil {
		return
	}

	payload, err := json.Marshal(members)
	if err != nil {
		return
	}

	err = r.cache.Set(ctx, cacheKey(labelID), payload, r.ttl).Err()
	if err != nil {
		r.logger.WarnContext(ctx, "label cache write failed", "label_id", labelID, "error", err)
	}
}
