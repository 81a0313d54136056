package repository

import (
	"context"

	"instafeed/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EngagementRepository owns like and save edges. Likes drive posts.likes_count;
// saves carry no counter.
type EngagementRepository interface {
	Like(ctx context.Context, postID, userID, username string) (int, error)
	Unlike(ctx context.Context, postID, userID string) (int, error)
	ToggleLike(ctx context.Context, postID, userID, username string) (bool, int, error)
	Save(ctx context.Context, postID, userID, username string) error
	Unsave(ctx context.Context, postID, userID string) error
	ToggleSave(ctx context.Context, postID, userID, username string) (bool, error)
	State(ctx context.Context, postID, userID string) (*models.PostEngagement, error)
	SavedPostIDs(ctx context.Context, userID string) ([]string, error)
	ReconcileLikes(ctx context.Context) (int64, error)
}

type engagementRepository struct {
	db *gorm.DB
}

// NewEngagementRepository creates a new EngagementRepository
func NewEngagementRepository(db *gorm.DB) EngagementRepository {
	return &engagementRepository{db: db}
}

func insertLike(tx *gorm.DB, postID, userID, username string) error {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Like{PostID: postID, UserID: userID, Username: username})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return adjustCounter(tx, &models.Post{}, postID, "likes_count", 1)
}

// deleteLike reports whether an edge existed.
func deleteLike(tx *gorm.DB, postID, userID string) (bool, error) {
	res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Like{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, adjustCounter(tx, &models.Post{}, postID, "likes_count", -1)
}

func likesCount(tx *gorm.DB, postID string) (int, error) {
	var post models.Post
	if err := tx.Select("likes_count").Where("id = ?", postID).First(&post).Error; err != nil {
		return 0, err
	}
	return post.LikesCount, nil
}

func postExists(tx *gorm.DB, postID string) error {
	var n int64
	if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Like is idempotent and returns the resulting likes count.
func (r *engagementRepository) Like(ctx context.Context, postID, userID, username string) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := insertLike(tx, postID, userID, username); err != nil {
			return err
		}
		var err error
		count, err = likesCount(tx, postID)
		return err
	})
	if err != nil {
		return 0, wrapErr(err, "Post", postID)
	}
	return count, nil
}

// Unlike is idempotent and returns the resulting likes count.
func (r *engagementRepository) Unlike(ctx context.Context, postID, userID string) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := deleteLike(tx, postID, userID); err != nil {
			return err
		}
		var err error
		count, err = likesCount(tx, postID)
		return err
	})
	if err != nil {
		return 0, wrapErr(err, "Post", postID)
	}
	return count, nil
}

// ToggleLike flips the like edge and its counter together and returns the new
// state and count.
func (r *engagementRepository) ToggleLike(ctx context.Context, postID, userID, username string) (bool, int, error) {
	var (
		liked bool
		count int
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existed, err := deleteLike(tx, postID, userID)
		if err != nil {
			return err
		}
		if !existed {
			if err := insertLike(tx, postID, userID, username); err != nil {
				return err
			}
		}
		liked = !existed
		count, err = likesCount(tx, postID)
		return err
	})
	if err != nil {
		return false, 0, wrapErr(err, "Post", postID)
	}
	return liked, count, nil
}

func (r *engagementRepository) Save(ctx context.Context, postID, userID, username string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := postExists(tx, postID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Save{PostID: postID, UserID: userID, Username: username}).Error
	})
	return wrapErr(err, "Post", postID)
}

func (r *engagementRepository) Unsave(ctx context.Context, postID, userID string) error {
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Save{}).Error
	return wrapErr(err, "Post", postID)
}

func (r *engagementRepository) ToggleSave(ctx context.Context, postID, userID, username string) (bool, error) {
	saved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := postExists(tx, postID); err != nil {
			return err
		}
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.Save{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		saved = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Save{PostID: postID, UserID: userID, Username: username}).Error
	})
	if err != nil {
		return false, wrapErr(err, "Post", postID)
	}
	return saved, nil
}

// State returns what userID observes for the post.
func (r *engagementRepository) State(ctx context.Context, postID, userID string) (*models.PostEngagement, error) {
	db := r.db.WithContext(ctx)

	count, err := likesCount(db, postID)
	if err != nil {
		return nil, wrapErr(err, "Post", postID)
	}

	var liked, saved int64
	if err := db.Model(&models.Like{}).Where("post_id = ? AND user_id = ?", postID, userID).Count(&liked).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.Save{}).Where("post_id = ? AND user_id = ?", postID, userID).Count(&saved).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	return &models.PostEngagement{
		PostID:     postID,
		Liked:      liked > 0,
		Saved:      saved > 0,
		LikesCount: count,
	}, nil
}

func (r *engagementRepository) SavedPostIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	if err := r.db.WithContext(ctx).Model(&models.Save{}).
		Where("user_id = ?", userID).
		Pluck("post_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// ReconcileLikes recomputes likes_count from the like edges and returns how
// many posts had drifted.
func (r *engagementRepository) ReconcileLikes(ctx context.Context) (int64, error) {
	const likes = "(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id)"

	res := r.db.WithContext(ctx).Exec("UPDATE posts SET likes_count = " + likes + " WHERE likes_count <> " + likes)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}
