package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/recordbase/adapters/auth"
	"github.com/artpar/recordbase/adapters/clock"
	"github.com/artpar/recordbase/adapters/hasher"
	"github.com/artpar/recordbase/adapters/random"
	"github.com/artpar/recordbase/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an actor",
	Long: `Issue a signed bearer token. Requests carrying it are attributed to
the actor in the changelog. Requires auth.jwt_secret.

Examples:
  recordbase token --actor alice
  recordbase token --actor alice --name "Alice Doe" --ttl 1h`,
	RunE: runToken,
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Hash a service API key for auth.api_key_hash",
	Long: `Print the bcrypt hash of a service API key. Without an argument a new
random key is generated and printed along with its hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashKey,
}

var (
	tokenActor string
	tokenName  string
	tokenTTL   time.Duration
	hashCost   int
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashKeyCmd)

	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "actor id (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	tokenCmd.MarkFlagRequired("actor")

	hashKeyCmd.Flags().IntVar(&hashCost, "cost", 12, "bcrypt cost")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}
	ttl := cfg.Auth.TokenTTL
	if tokenTTL > 0 {
		ttl = tokenTTL
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, ttl, clock.Real{})
	if err != nil {
		return err
	}
	token, expires, err := tokens.Issue(tokenActor, tokenName)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func runHashKey(cmd *cobra.Command, args []string) error {
	key := ""
	if len(args) == 1 {
		key = args[0]
	} else {
		k, err := random.Real{}.String(32)
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		key = "rb_" + k
		fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\n", key)
	}

	hash, err := hasher.NewBcrypt(hashCost).Hash(key)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "hash: %s\n", hash)
	fmt.Fprintf(cmd.ErrOrStderr(), "set auth.api_key_hash or %sAUTH_API_KEY_HASH to the hash\n", config.EnvPrefix)
	return nil
}
