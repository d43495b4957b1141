package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/splax/skillsync/internal/domain"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Mentor review actions",
}

var decideFeedback string

var reviewPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List submitted teams waiting for you",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		teams, err := client.PendingReviews(ctx, token)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMEMBERS\tUPDATED")
		for _, t := range teams {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ID, t.Name, len(t.Members), t.UpdatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var reviewRubricCmd = &cobra.Command{
	Use:   "rubric <team-id> <problem,implementation,teamwork,presentation>",
	Short: "Grade the current submission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rubric, err := parseRubric(args[1])
		if err != nil {
			return err
		}
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		sub, err := client.PostRubric(ctx, token, args[0], rubric)
		if err != nil {
			return err
		}
		if sub.FinalScore != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "final score %d/%d\n", *sub.FinalScore, domain.MaxFinalScore)
		}
		return nil
	},
}

var reviewDecideCmd = &cobra.Command{
	Use:       "decide <team-id> <approved|rejected>",
	Short:     "Approve or reject the current submission",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(domain.StatusApproved), string(domain.StatusRejected)},
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome := domain.ReviewStatus(strings.ToLower(args[1]))
		if outcome != domain.StatusApproved && outcome != domain.StatusRejected {
			return fmt.Errorf("decision must be approved or rejected, got %q", args[1])
		}
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		sub, err := client.Decide(ctx, token, args[0], outcome, decideFeedback)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "submission %s is now %s\n", sub.ID, sub.Status)
		return nil
	},
}

var appreciateCmd = &cobra.Command{
	Use:   "appreciate <team-id> <user-id> <message...>",
	Short: "Send a private thank-you to a teammate",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		if _, err := client.Appreciate(ctx, token, args[0], args[1], strings.Join(args[2:], " ")); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "appreciation sent")
		return nil
	},
}

var thanksCmd = &cobra.Command{
	Use:   "thanks",
	Short: "List appreciations you received in every team",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		notes, err := client.MyAppreciations(ctx, token)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tTEAM\tFROM\tMESSAGE")
		for _, n := range notes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.CreatedAt.Local().Format(time.RFC1123), n.TeamID, n.FromUser, n.Message)
		}
		return tw.Flush()
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <team-id>",
	Short: "List a team's mentor sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		sessions, err := client.ListSessions(ctx, token, args[0])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWHEN\tSTATUS\tLINK")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.ScheduledAt.Local().Format(time.RFC1123), s.Status, s.MeetingLink)
		}
		return tw.Flush()
	},
}

// parseRubric reads four comma separated scores in rubric order.
func parseRubric(raw string) (domain.Rubric, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return domain.Rubric{}, fmt.Errorf("expected 4 scores, got %d", len(parts))
	}
	scores := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return domain.Rubric{}, fmt.Errorf("score %d: %w", i+1, err)
		}
		scores[i] = n
	}
	return domain.Rubric{Problem: scores[0], Implementation: scores[1], Teamwork: scores[2], Presentation: scores[3]}, nil
}

func init() {
	reviewDecideCmd.Flags().StringVar(&decideFeedback, "feedback", "", "feedback shown to the team")
	reviewCmd.AddCommand(reviewPendingCmd, reviewRubricCmd, reviewDecideCmd)
	rootCmd.AddCommand(reviewCmd, appreciateCmd, thanksCmd, sessionsCmd)
}
