package repository

import (
	"context"

	"instafeed/internal/cache"
	"instafeed/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository owns follow edges and the two counters they drive.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followedID string) (bool, error)
	Unfollow(ctx context.Context, followerID, followedID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followedID string) (bool, error)
	ListFollowed(ctx context.Context, followerID string) ([]string, error)
	ListFollowedAccounts(ctx context.Context, followerID string) ([]models.Account, error)
	ReconcileCounters(ctx context.Context) (int64, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new FollowRepository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

// Follow inserts the edge if absent and, only then, bumps both counters. It
// reports whether an edge was created.
func (r *followRepository) Follow(ctx context.Context, followerID, followedID string) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edge := models.Follow{FollowedID: followedID, FollowerID: followerID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := adjustCounter(tx, &models.Account{}, followedID, "followers_count", 1); err != nil {
			return wrapErr(err, "Account", followedID)
		}
		if err := adjustCounter(tx, &models.Account{}, followerID, "following_count", 1); err != nil {
			return wrapErr(err, "Account", followerID)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, wrapErr(err, "Follow", followerID+" -> "+followedID)
	}
	if created {
		cache.InvalidateAccounts(ctx, followerID, followedID)
	}
	return created, nil
}

// Unfollow removes the edge if present and, only then, decrements both
// counters. It reports whether an edge was removed.
func (r *followRepository) Unfollow(ctx context.Context, followerID, followedID string) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("followed_id = ? AND follower_id = ?", followedID, followerID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := adjustCounter(tx, &models.Account{}, followedID, "followers_count", -1); err != nil {
			return wrapErr(err, "Account", followedID)
		}
		if err := adjustCounter(tx, &models.Account{}, followerID, "following_count", -1); err != nil {
			return wrapErr(err, "Account", followerID)
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, wrapErr(err, "Follow", followerID+" -> "+followedID)
	}
	if removed {
		cache.InvalidateAccounts(ctx, followerID, followedID)
	}
	return removed, nil
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("followed_id = ? AND follower_id = ?", followedID, followerID).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// ListFollowed returns the ids of every account followerID follows.
func (r *followRepository) ListFollowed(ctx context.Context, followerID string) ([]string, error) {
	ids := []string{}
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", followerID).
		Order("created_at ASC").
		Pluck("followed_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *followRepository) ListFollowedAccounts(ctx context.Context, followerID string) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.WithContext(ctx).
		Table("accounts").
		Joins("JOIN follows f ON f.followed_id = accounts.id").
		Where("f.follower_id = ?", followerID).
		Order("accounts.username ASC").
		Find(&accounts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return accounts, nil
}

// ReconcileCounters recomputes both follow counters from the edges and
// returns how many accounts had drifted.
func (r *followRepository) ReconcileCounters(ctx context.Context) (int64, error) {
	const followers = "(SELECT COUNT(*) FROM follows WHERE follows.followed_id = accounts.id)"
	const following = "(SELECT COUNT(*) FROM follows WHERE follows.follower_id = accounts.id)"

	res := r.db.WithContext(ctx).Exec(
		"UPDATE accounts SET followers_count = " + followers + ", following_count = " + following +
			" WHERE followers_count <> " + followers + " OR following_count <> " + following,
	)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	// Cached accounts pick up the repaired counters once AccountTTL expires.
	return res.RowsAffected, nil
}
