package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/sandbox"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <ruleset.json>",
		Short: "Validate a rule set file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rs rules.RuleSet
			if err := readJSON(args[0], &rs); err != nil {
				return err
			}
			if err := rules.Validate(&rs); err != nil {
				var verr *rules.ValidationError
				var cerr *rules.ConflictError
				switch {
				case errors.As(err, &verr):
					for _, issue := range verr.Issues {
						fmt.Fprintf(os.Stderr, "invalid: rule %s field %s: %s\n", issue.RuleID, issue.Field, issue.Message)
					}
				case errors.As(err, &cerr):
					for _, c := range cerr.Conflicts {
						fmt.Fprintf(os.Stderr, "conflict: %s vs %s over %q in %s\n", c.RuleA, c.RuleB, c.Phrase, c.Category)
					}
				}
				return err
			}
			fmt.Printf("ok: %d rules, %d categories\n", len(rs.Rules), len(rs.Categories))
			return nil
		},
	}
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <ruleset.json>",
		Short: "Print the canonical content hash of a rule set file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rs rules.RuleSet
			if err := readJSON(args[0], &rs); err != nil {
				return err
			}
			hash, err := rules.ContentHash(&rs)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			if rs.ContentHash != "" && rs.ContentHash != hash {
				return fmt.Errorf("stored hash %s does not match content", rs.ContentHash)
			}
			return nil
		},
	}
}

func sandboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox <ruleset.json> <transcript.json>",
		Short: "Evaluate a transcript against a rule set file and print the summary",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rs rules.RuleSet
			if err := readJSON(args[0], &rs); err != nil {
				return err
			}
			var in transcript.Input
			if err := readJSON(args[1], &in); err != nil {
				return err
			}
			t, err := loadTunables()
			if err != nil {
				return err
			}
			summary, err := sandbox.New(t.Engine()).Run(&rs, &in)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
}
