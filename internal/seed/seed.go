package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"instafeed/internal/database"
	"instafeed/internal/middleware"
	"instafeed/internal/models"
	"instafeed/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Report counts what a run created.
type Report struct {
	Users    int
	Follows  int
	Posts    int
	Likes    int
	Saves    int
	Comments int
	Messages int
}

func (r Report) String() string {
	return fmt.Sprintf("%d users, %d follows, %d posts, %d likes, %d saves, %d comments, %d messages",
		r.Users, r.Follows, r.Posts, r.Likes, r.Saves, r.Comments, r.Messages)
}

// Seeder writes scenarios through the repositories so denormalized counters
// stay consistent with the edge tables.
type Seeder struct {
	db         *gorm.DB
	creds      repository.CredentialRepository
	accounts   repository.AccountRepository
	follows    repository.FollowRepository
	posts      repository.PostRepository
	engagement repository.EngagementRepository
	comments   repository.CommentRepository
	messages   repository.MessageRepository

	// BcryptCost trades hash strength for seeding speed.
	BcryptCost int
	now        func() time.Time
}

// NewSeeder creates a Seeder bound to db.
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{
		db:         db,
		creds:      repository.NewCredentialRepository(db),
		accounts:   repository.NewAccountRepository(db),
		follows:    repository.NewFollowRepository(db),
		posts:      repository.NewPostRepository(db),
		engagement: repository.NewEngagementRepository(db),
		comments:   repository.NewCommentRepository(db),
		messages:   repository.NewMessageRepository(db),
		BcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// ClearAll deletes every row of every persistent model.
func (s *Seeder) ClearAll(ctx context.Context) error {
	all := database.PersistentModels()
	tx := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for i := len(all) - 1; i >= 0; i-- {
		if err := tx.Delete(all[i]).Error; err != nil {
			return fmt.Errorf("clear %T: %w", all[i], err)
		}
	}
	middleware.Logger.InfoContext(ctx, "database cleared")
	return nil
}

// Run loads sc. Named users keep their usernames; generated users come after.
func (s *Seeder) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(sc.Password), s.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	r := &run{Seeder: s, ctx: ctx, hash: string(hash), users: make(map[string]*models.Account)}
	if err := r.load(sc); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "seeding completed", slog.String("report", r.report.String()))
	return &r.report, nil
}

type run struct {
	*Seeder
	ctx    context.Context
	hash   string
	users  map[string]*models.Account
	order  []*models.Account
	report Report
}

func (r *run) load(sc *Scenario) error {
	for _, u := range sc.Users {
		if _, err := r.createUser(u); err != nil {
			return err
		}
	}
	for _, f := range sc.Follows {
		if err := r.follow(r.users[f.From], r.users[f.To]); err != nil {
			return err
		}
	}
	for _, p := range sc.Posts {
		if err := r.createPost(p); err != nil {
			return err
		}
	}
	for i, m := range sc.Messages {
		if err := r.sendMessage(m, i); err != nil {
			return err
		}
	}
	if sc.Random != nil {
		return r.generate(*sc.Random)
	}
	return nil
}

func (r *run) createUser(u UserSpec) (*models.Account, error) {
	id := uuid.NewString()
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		email = u.Username + "@example.com"
	}
	fullName := u.FullName
	if fullName == "" {
		fullName = gofakeit.Name()
	}

	cred := &models.Credential{ID: id, Email: email, PasswordHash: r.hash}
	if err := r.creds.Create(r.ctx, cred); err != nil {
		return nil, fmt.Errorf("create credential %s: %w", u.Username, err)
	}
	account := &models.Account{
		ID:        id,
		Username:  u.Username,
		FullName:  fullName,
		Email:     email,
		AvatarURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", id),
	}
	if err := r.accounts.Create(r.ctx, account); err != nil {
		return nil, fmt.Errorf("create account %s: %w", u.Username, err)
	}

	r.users[account.Username] = account
	r.order = append(r.order, account)
	r.report.Users++
	return account, nil
}

func (r *run) follow(from, to *models.Account) error {
	changed, err := r.follows.Follow(r.ctx, from.ID, to.ID)
	if err != nil {
		return fmt.Errorf("follow %s -> %s: %w", from.Username, to.Username, err)
	}
	if changed {
		r.report.Follows++
	}
	return nil
}

func (r *run) createPost(p PostSpec) error {
	author := r.users[p.Author]
	id := uuid.NewString()
	imageURL := p.ImageURL
	if imageURL == "" {
		imageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", id)
	}

	post := &models.Post{
		ID:              id,
		AuthorID:        author.ID,
		AuthorUsername:  author.Username,
		AuthorAvatarURL: author.AvatarURL,
		ImageURL:        imageURL,
		Caption:         p.Caption,
		CreatedAt:       r.now().Add(-time.Duration(p.HoursAgo) * time.Hour),
	}
	if err := r.posts.Create(r.ctx, post); err != nil {
		return fmt.Errorf("create post by %s: %w", author.Username, err)
	}
	r.report.Posts++

	for _, name := range p.LikedBy {
		u := r.users[name]
		if _, err := r.engagement.Like(r.ctx, post.ID, u.ID, u.Username); err != nil {
			return fmt.Errorf("like by %s: %w", name, err)
		}
		r.report.Likes++
	}
	for _, name := range p.SavedBy {
		u := r.users[name]
		if err := r.engagement.Save(r.ctx, post.ID, u.ID, u.Username); err != nil {
			return fmt.Errorf("save by %s: %w", name, err)
		}
		r.report.Saves++
	}

	for i, c := range p.Comments {
		// Later comments are newer so threads read in file order, newest first.
		at := post.CreatedAt.Add(time.Duration(i+1) * time.Minute)
		comment := &models.Comment{
			ID:        uuid.NewString(),
			PostID:    post.ID,
			Username:  c.Author,
			Text:      c.Text,
			CreatedAt: at,
		}
		if err := r.comments.Create(r.ctx, comment); err != nil {
			return fmt.Errorf("comment by %s: %w", c.Author, err)
		}
		for j, rep := range c.Replies {
			reply := &models.Reply{
				ID:        uuid.NewString(),
				CommentID: comment.ID,
				Username:  rep.Author,
				Text:      rep.Text,
				CreatedAt: at.Add(time.Duration(j+1) * time.Second),
			}
			if err := r.comments.AppendReply(r.ctx, reply); err != nil {
				return fmt.Errorf("reply by %s: %w", rep.Author, err)
			}
		}
		r.report.Comments++
	}
	return nil
}

func (r *run) sendMessage(m MessageSpec, seq int) error {
	from, to := r.users[m.From], r.users[m.To]
	msg := &models.Message{
		ID:             xid.New().String(),
		ConversationID: models.ConversationKey(from.ID, to.ID),
		SenderID:       from.ID,
		RecipientID:    to.ID,
		Text:           m.Text,
		Timestamp:      r.now().UTC().Add(time.Duration(seq) * time.Second),
	}
	if err := r.messages.Create(r.ctx, msg); err != nil {
		return fmt.Errorf("message %s -> %s: %w", m.From, m.To, err)
	}
	r.report.Messages++
	return nil
}

// generate adds spec.Users fake accounts with posts, and random follows
// across every account seeded so far.
func (r *run) generate(spec RandomSpec) error {
	maxDays := spec.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}

	created := make([]*models.Account, 0, spec.Users)
	for i := 0; i < spec.Users; i++ {
		acc, err := r.createUser(UserSpec{Username: r.uniqueUsername(), FullName: gofakeit.Name()})
		if err != nil {
			return err
		}
		created = append(created, acc)
	}

	for _, acc := range created {
		for i := 0; i < spec.PostsPerUser; i++ {
			err := r.createPost(PostSpec{
				Author:   acc.Username,
				Caption:  gofakeit.Sentence(gofakeit.Number(3, 12)),
				HoursAgo: gofakeit.Number(0, maxDays*24),
			})
			if err != nil {
				return err
			}
		}
	}

	for _, from := range r.order {
		for _, to := range r.order {
			if from.ID == to.ID || gofakeit.Float64() >= spec.FollowRatio {
				continue
			}
			if err := r.follow(from, to); err != nil {
				return err
			}
		}
	}
	return nil
}

// uniqueUsername derives a valid, unused username from gofakeit.
func (r *run) uniqueUsername() string {
	for {
		var b strings.Builder
		for _, c := range gofakeit.Username() {
			if c < 128 && (c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
				b.WriteRune(c)
			}
		}
		base := strings.Trim(b.String(), "_")
		if len(base) > 24 {
			base = base[:24]
		}
		name := fmt.Sprintf("%s%d", strings.ToLower(base), gofakeit.Number(100, 999))
		if len(name) >= 3 && r.users[name] == nil {
			return name
		}
	}
}
