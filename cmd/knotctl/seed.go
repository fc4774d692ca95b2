package main

import (
	"fmt"

	"knot/internal/bootstrap"
	"knot/internal/seed"

	"github.com/spf13/cobra"
)

var seedFlags struct {
	preset       string
	users        int
	postsPerUser int
	likesPerPost int
	savesPerUser int
	randomSeed   int64
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with demo accounts and posts",
	Long: `Creates demo accounts, posts with generated images, likes and saves.

A YAML preset replaces the defaults; flags given explicitly override both.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := seedOptions(cmd)
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(rt *bootstrap.Runtime) error {
			svc := rt.Services()
			res, err := seed.Run(cmd.Context(), seed.Deps{
				Accounts: svc.Accounts,
				Posts:    svc.Posts,
				Saves:    svc.Saves,
			}, opts)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded users=%d posts=%d likes=%d saves=%d\n",
				len(res.Users), len(res.Posts), res.Likes, res.Saves)
			fmt.Fprintf(cmd.OutOrStdout(), "all seeded accounts use the password %q\n", opts.Password)
			return nil
		})
	},
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedFlags.preset, "preset", "", "YAML preset file")
	f.IntVar(&seedFlags.users, "users", 0, "number of accounts")
	f.IntVar(&seedFlags.postsPerUser, "posts", 0, "posts per account")
	f.IntVar(&seedFlags.likesPerPost, "likes", 0, "likes per post")
	f.IntVar(&seedFlags.savesPerUser, "saves", 0, "saves per account")
	f.Int64Var(&seedFlags.randomSeed, "seed", 0, "random seed for a reproducible run")
}

// seedOptions layers the preset and the flags that were set over the defaults.
func seedOptions(cmd *cobra.Command) (seed.Options, error) {
	opts := seed.DefaultOptions()
	if seedFlags.preset != "" {
		var err error
		if opts, err = seed.LoadPreset(seedFlags.preset); err != nil {
			return opts, err
		}
	}
	f := cmd.Flags()
	if f.Changed("users") {
		opts.Users = seedFlags.users
	}
	if f.Changed("posts") {
		opts.PostsPerUser = seedFlags.postsPerUser
	}
	if f.Changed("likes") {
		opts.LikesPerPost = seedFlags.likesPerPost
	}
	if f.Changed("saves") {
		opts.SavesPerUser = seedFlags.savesPerUser
	}
	if f.Changed("seed") {
		opts.RandomSeed = seedFlags.randomSeed
	}
	return opts, opts.Validate()
}
