package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset describes how much demo data to create.
type Preset struct {
	// RandSeed makes the generated data reproducible. Zero picks a random seed.
	RandSeed        int64 `yaml:"seed"`
	Users           int   `yaml:"users"`
	PostsPerUser    int   `yaml:"posts_per_user"`
	CommentsPerPost int   `yaml:"comments_per_post"`
	// LikeRatio is the chance that a given user reacts to a given post.
	LikeRatio float64      `yaml:"like_ratio"`
	Accounts  []PresetUser `yaml:"accounts"`
}

// PresetUser is a fixed account created before the generated ones, typically
// an admin matching a real identity-provider user.
type PresetUser struct {
	ID          string `yaml:"id"`
	Email       string `yaml:"email"`
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
}

// DefaultPreset is used when no preset file is given.
func DefaultPreset() Preset {
	return Preset{
		Users:           20,
		PostsPerUser:    3,
		CommentsPerPost: 2,
		LikeRatio:       0.3,
	}
}

// ParsePreset reads a YAML preset. Missing fields keep their defaults.
func ParsePreset(data []byte) (Preset, error) {
	p := DefaultPreset()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("parse seed preset: %w", err)
	}
	if p.Users < 0 || p.PostsPerUser < 0 || p.CommentsPerPost < 0 {
		return Preset{}, fmt.Errorf("parse seed preset: counts must not be negative")
	}
	if p.LikeRatio < 0 || p.LikeRatio > 1 {
		return Preset{}, fmt.Errorf("parse seed preset: like_ratio must be between 0 and 1")
	}
	return p, nil
}

func LoadPreset(path string) (Preset, error) {
	data, err := os.ReadFile(path) // #nosec G304: operator-supplied path
	if err != nil {
		return Preset{}, err
	}
	return ParsePreset(data)
}
