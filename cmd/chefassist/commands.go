package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chefassist/internal/api"
	"chefassist/internal/audit"
	"chefassist/internal/business"
	"chefassist/internal/capability"
	"chefassist/internal/channel"
	"chefassist/internal/database"
	"chefassist/internal/guard"
)

var auditJSON bool

// auditCmd runs the channel policy sweep without starting a server.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that no channel can reach data it is not trusted with",
	Long: `Invoke every tool on every channel, plus one unknown channel, against
fixture data and report:
  - tools that are not fail-closed on channels without permission
  - sensitive data reaching an untrusted channel
  - the dashboard receiving restricted results`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		auditor, err := audit.New(capability.DefaultPolicy(), guard.DefaultRules(), audit.WithLogger(log))
		if err != nil {
			return err
		}
		report, err := auditor.Run(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if auditJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "channels: %v\nchecks:   %d\nfindings: %d\n", report.Channels, report.Checks, len(report.Findings))
			for _, f := range report.Findings {
				fmt.Fprintf(out, "  %-12s %-26s %s\n", f.Channel, f.Tool, f.Kind)
			}
		}
		return report.Err()
	},
}

var (
	tokenChef    string
	tokenChannel string
	tokenTTL     time.Duration
)

// tokenCmd mints a caller credential, for bridges and local testing.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed token for a chef on a channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		c := channel.Parse(tokenChannel)
		if !c.IsKnown() {
			return fmt.Errorf("unknown channel %q", tokenChannel)
		}
		tok, err := api.IssueToken(cfg.Auth.JWTSecret, tokenChef, c, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var outboxChef string

// outboxCmd lists messages the assistant queued for the messaging integration.
var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "List client messages queued by the assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			return err
		}

		msgs, err := business.NewDirectory(db).Outbox(cmd.Context(), outboxChef)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "outbox is empty")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "msg-%d\t%s\t%s\t%s\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.ClientID, m.Body)
		}
		return nil
	},
}

func init() {
	outboxCmd.Flags().StringVar(&outboxChef, "chef", "", "Chef whose outbox to list")
	_ = outboxCmd.MarkFlagRequired("chef")

	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Print the report as JSON")

	tokenCmd.Flags().StringVar(&tokenChef, "chef", "", "Chef id the token is scoped to")
	tokenCmd.Flags().StringVar(&tokenChannel, "channel", string(channel.Web), "Channel the caller speaks for")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default from config)")
	_ = tokenCmd.MarkFlagRequired("chef")
}
