package repository

import (
	"context"
	"errors"
	"unicode/utf8"

	"instafeed/internal/cache"
	"instafeed/internal/models"

	"gorm.io/gorm"
)

// CredentialRepository persists sign-in credentials.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) error
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
}

type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository returns a new CredentialRepository implementation.
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if err := r.db.WithContext(ctx).Create(cred).Error; err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("Email is already registered")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *credentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cred).Error; err != nil {
		return nil, wrapErr(err, "Credential", id)
	}
	return &cred, nil
}

// GetByEmail returns nil, nil when no credential uses the email.
func (r *credentialRepository) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &cred, nil
}

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	SearchPrefix(ctx context.Context, prefix, excludeID string, limit int) ([]models.Account, error)
	ListSuggestable(ctx context.Context, viewerID string, limit int) ([]models.Account, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Account, error)
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository returns a new AccountRepository implementation.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create inserts the account. The unique username index decides races between
// concurrent onboardings: the loser gets ErrUsernameTaken.
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return models.NewInternalError(err)
	}

	var n int64
	if cerr := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Count(&n).Error; cerr == nil && n > 0 {
		return models.NewConflictError("Account is already onboarded")
	}
	return models.ErrUsernameTaken
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := cache.Aside(ctx, cache.AccountKey(id), &account, cache.AccountTTL, func() error {
		if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
			return wrapErr(err, "Account", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&account).Error; err != nil {
		return nil, wrapErr(err, "Account", username)
	}
	return &account, nil
}

func (r *accountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Account{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// SearchPrefix is a case-sensitive prefix match. Comparing the leading
// characters with = keeps it exact under locale collations, and no character
// in the prefix acts as a wildcard.
func (r *accountRepository) SearchPrefix(ctx context.Context, prefix, excludeID string, limit int) ([]models.Account, error) {
	if prefix == "" {
		return []models.Account{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var accounts []models.Account
	if err := r.db.WithContext(ctx).
		Where("substr(username, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix).
		Where("id <> ?", excludeID).
		Order("username ASC").
		Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return accounts, nil
}

// ListSuggestable returns accounts other than viewerID that viewerID does not
// follow, ordered by username. The exclusion happens before the limit.
func (r *accountRepository) ListSuggestable(ctx context.Context, viewerID string, limit int) ([]models.Account, error) {
	followed := r.db.Model(&models.Follow{}).Select("followed_id").Where("follower_id = ?", viewerID)

	var accounts []models.Account
	q := r.db.WithContext(ctx).
		Where("id <> ?", viewerID).
		Where("id NOT IN (?)", followed).
		Order("username ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&accounts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return accounts, nil
}

func (r *accountRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Account, error) {
	if len(ids) == 0 {
		return []models.Account{}, nil
	}
	var accounts []models.Account
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("username ASC").Find(&accounts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return accounts, nil
}

// UpdateAvatar changes the account's avatar and the copy denormalized onto
// every post it authored, in one transaction.
func (r *accountRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).Where("id = ?", id).Update("avatar_url", avatarURL)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&models.Post{}).Where("author_id = ?", id).
			UpdateColumn("author_avatar_url", avatarURL).Error
	})
	if err != nil {
		return wrapErr(err, "Account", id)
	}
	cache.InvalidateAccounts(ctx, id)
	return nil
}
