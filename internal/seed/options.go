// Package seed fills a database with demo accounts, posts, likes and saves.
// It is intended for development and load testing only.
package seed

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPassword is shared by every seeded account.
const DefaultPassword = "Knot!Seed2024"

// Options configuration for the seeder
type Options struct {
	Users        int    `yaml:"users"`
	PostsPerUser int    `yaml:"posts_per_user"`
	LikesPerPost int    `yaml:"likes_per_post"`
	SavesPerUser int    `yaml:"saves_per_user"`
	Password     string `yaml:"password"`
	// RandomSeed makes a run reproducible; 0 picks one from the clock.
	RandomSeed  int64 `yaml:"random_seed"`
	Concurrency int   `yaml:"concurrency"`
}

// DefaultOptions is a small but populated feed.
func DefaultOptions() Options {
	return Options{
		Users:        10,
		PostsPerUser: 3,
		LikesPerPost: 4,
		SavesPerUser: 2,
		Password:     DefaultPassword,
		Concurrency:  4,
	}
}

// LoadPreset reads a YAML preset. Fields left out keep their defaults.
func LoadPreset(path string) (Options, error) {
	opts := DefaultOptions()
	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read preset: %w", err)
	}
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return opts, opts.Validate()
}

// Validate rejects negative counts and an empty user set.
func (o Options) Validate() error {
	if o.Users <= 0 {
		return errors.New("users must be positive")
	}
	if o.PostsPerUser < 0 || o.LikesPerPost < 0 || o.SavesPerUser < 0 {
		return errors.New("counts must not be negative")
	}
	if o.Concurrency < 0 {
		return errors.New("concurrency must not be negative")
	}
	return nil
}
