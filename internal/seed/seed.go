// Package seed fills a development database with demo users, posts,
// comments and reactions. Content goes through the services so it obeys the
// same rules as real traffic.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"facefeed/internal/domain"
	"facefeed/internal/middleware"
	"facefeed/internal/models"
	"facefeed/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

var (
	nonUsername = regexp.MustCompile(`[^A-Za-z0-9_]+`)
	reactions   = []string{"like", "love", "haha", "wow", "sad", "angry", "care"}
	videoLinks  = []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/9bZkp7q19f0",
		"https://vimeo.com/76979871",
	}
)

// Summary counts what a run created.
type Summary struct {
	Users     int
	Posts     int
	Comments  int
	Reactions int
}

type Seeder struct {
	deps      service.Deps
	posts     *service.PostService
	comments  *service.CommentService
	reactions *service.ReactionService
}

func NewSeeder(d service.Deps) *Seeder {
	return &Seeder{
		deps:      d,
		posts:     service.NewPostService(d),
		comments:  service.NewCommentService(d),
		reactions: service.NewReactionService(d),
	}
}

// Run creates the preset accounts, then generated users with posts,
// comments and reactions.
func (s *Seeder) Run(ctx context.Context, p Preset) (Summary, error) {
	var sum Summary
	seed := p.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(seed)

	userIDs := make([]string, 0, len(p.Accounts)+p.Users)
	for _, acct := range p.Accounts {
		u, err := s.createAccount(ctx, acct)
		if err != nil {
			return sum, err
		}
		userIDs = append(userIDs, u.ID())
		sum.Users++
	}
	for i := range p.Users {
		u, err := s.createFakeUser(ctx, faker, i)
		if err != nil {
			return sum, err
		}
		userIDs = append(userIDs, u.ID())
		sum.Users++
	}
	middleware.Logger.Info("seeded users", slog.Int("count", sum.Users))

	// Only public posts collect comments and reactions from other users.
	var postIDs []string
	for _, uid := range userIDs {
		for range p.PostsPerUser {
			post, err := s.posts.CreatePost(ctx, fakePost(faker, uid))
			if err != nil {
				return sum, fmt.Errorf("seed post: %w", err)
			}
			sum.Posts++
			if post.VisibleTo("") {
				postIDs = append(postIDs, post.ID())
			}
		}
	}
	middleware.Logger.Info("seeded posts", slog.Int("count", sum.Posts))

	if len(userIDs) == 0 {
		return sum, nil
	}
	for _, pid := range postIDs {
		for range p.CommentsPerPost {
			author := userIDs[faker.Number(0, len(userIDs)-1)]
			_, err := s.comments.CreateComment(ctx, service.CreateCommentInput{
				AuthorID: author,
				PostID:   pid,
				Text:     faker.Sentence(faker.Number(4, 14)),
			})
			if err != nil {
				return sum, fmt.Errorf("seed comment: %w", err)
			}
			sum.Comments++
		}
		for _, uid := range userIDs {
			if faker.Float64Range(0, 1) >= p.LikeRatio {
				continue
			}
			reaction := reactions[faker.Number(0, len(reactions)-1)]
			if _, err := s.reactions.LikePost(ctx, uid, pid, reaction); err != nil {
				return sum, fmt.Errorf("seed reaction: %w", err)
			}
			sum.Reactions++
		}
	}
	middleware.Logger.Info("seeded engagement",
		slog.Int("comments", sum.Comments),
		slog.Int("reactions", sum.Reactions),
	)
	return sum, nil
}

func (s *Seeder) createAccount(ctx context.Context, acct PresetUser) (*domain.User, error) {
	role := domain.RoleUser
	if acct.Role != "" {
		r, err := domain.ParseUserRole(acct.Role)
		if err != nil {
			return nil, fmt.Errorf("seed account %s: %w", acct.ID, err)
		}
		role = r
	}
	displayName := acct.DisplayName
	if displayName == "" {
		displayName = acct.Username
	}
	return s.createUser(ctx, domain.UserParams{
		ID:       acct.ID,
		Email:    strings.ToLower(acct.Email),
		Username: acct.Username,
		Role:     role,
		Profile: domain.Profile{
			DisplayName: displayName,
			Preferences: domain.DefaultPreferences(),
		},
	})
}

func (s *Seeder) createFakeUser(ctx context.Context, faker *gofakeit.Faker, n int) (*domain.User, error) {
	first, last := faker.FirstName(), faker.LastName()
	username := nonUsername.ReplaceAllString(fmt.Sprintf("%s_%s_%d", first, last, n), "")
	if len(username) > 30 {
		username = username[len(username)-30:]
	}
	return s.createUser(ctx, domain.UserParams{
		ID:       "seed_" + faker.UUID(),
		Email:    strings.ToLower(fmt.Sprintf("%s.%s.%d@example.com", nonUsername.ReplaceAllString(first, ""), nonUsername.ReplaceAllString(last, ""), n)),
		Username: username,
		Profile: domain.Profile{
			DisplayName: first + " " + last,
			Bio:         faker.Sentence(8),
			AvatarURL:   fmt.Sprintf("https://picsum.photos/seed/%s/200/200", faker.UUID()),
			Preferences: domain.DefaultPreferences(),
		},
	})
}

func (s *Seeder) createUser(ctx context.Context, p domain.UserParams) (*domain.User, error) {
	u := domain.NewUser(p)
	if err := s.deps.Users.Create(ctx, u); err != nil {
		if models.HasCode(err, models.CodeConflict) {
			return s.deps.Users.FindByID(ctx, p.ID)
		}
		return nil, fmt.Errorf("seed user %s: %w", p.Username, err)
	}
	return u, nil
}

func fakePost(faker *gofakeit.Faker, authorID string) service.CreatePostInput {
	in := service.CreatePostInput{
		AuthorID: authorID,
		Text:     fmt.Sprintf("%s #%s", faker.Sentence(faker.Number(6, 20)), strings.ToLower(faker.Hobby())),
	}
	switch faker.Number(0, 9) {
	case 0, 1:
		in.VideoURL = videoLinks[faker.Number(0, len(videoLinks)-1)]
	case 2, 3, 4:
		for range faker.Number(1, 4) {
			in.ImageURLs = append(in.ImageURLs, fmt.Sprintf("https://picsum.photos/seed/%s/800/800", faker.UUID()))
		}
	}
	if faker.Number(0, 9) == 0 {
		in.Privacy = string(domain.PrivacyPrivate)
	}
	return in
}

// Clear deletes all seeded content, children first.
func Clear(ctx context.Context, db *gorm.DB) error {
	tables := []string{
		"post_views", "post_shares", "likes", "comments", "posts",
		"user_activity_log", "user_permissions", "user_settings", "user_sessions", "users",
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}
