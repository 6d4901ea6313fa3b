// Command seed populates the database with demo users, posts and reactions.
package main

import (
	"context"
	"flag"
	"log"

	"facefeed/internal/bootstrap"
	"facefeed/internal/config"
	"facefeed/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 0, "Number of generated users (overrides the preset)")
	postsPerUser := flag.Int("posts", 0, "Posts per generated user (overrides the preset)")
	shouldClean := flag.Bool("clean", false, "Clear existing content before seeding")
	presetPath := flag.String("preset", "", "Path to a YAML seed preset")
	flag.Parse()

	preset := seed.DefaultPreset()
	if *presetPath != "" {
		p, err := seed.LoadPreset(*presetPath)
		if err != nil {
			log.Fatalf("Failed to load preset: %v", err)
		}
		preset = p
		log.Printf("Applying preset: %s", *presetPath)
	}
	if *numUsers > 0 {
		preset.Users = *numUsers
	}
	if *postsPerUser > 0 {
		preset.PostsPerUser = *postsPerUser
	}
	log.Printf("Target: %d users, %d posts each, clean=%v", preset.Users, preset.PostsPerUser, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{Migrate: true, SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = rt.Close() }()

	if *shouldClean {
		if err := seed.Clear(ctx, rt.DB.Primary); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	sum, err := seed.NewSeeder(rt.Deps).Run(ctx, preset)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d users, %d posts, %d comments, %d reactions", sum.Users, sum.Posts, sum.Comments, sum.Reactions)
}
