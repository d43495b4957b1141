package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splax/skillsync/internal/domain"
	apiclient "github.com/splax/skillsync/pkg/api/client"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List, create, join and submit teams",
}

var (
	teamsJoinable bool

	createName     string
	createCapacity int
	createSkills   []string
	createMentor   string
)

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your teams, or teams you can join",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		teams, err := client.ListTeams(ctx, token, teamsJoinable)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tMEMBERS\tMENTOR")
		for _, t := range teams {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n", t.ID, t.Name, t.ReviewStatus, len(t.Members), t.Capacity, t.MentorID)
		}
		return tw.Flush()
	},
}

var teamsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a team with you as its first member",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if strings.TrimSpace(createName) == "" {
			return fmt.Errorf("--name is required")
		}
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		team, err := client.CreateTeam(ctx, token, apiclient.CreateTeamInput{
			Name:           createName,
			Capacity:       createCapacity,
			RequiredSkills: createSkills,
			MentorID:       createMentor,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "team created: %s (%s)\n", team.ID, team.Name)
		return nil
	},
}

var teamsShowCmd = &cobra.Command{
	Use:   "show <team-id>",
	Short: "Show a team and its current submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		detail, err := client.GetTeam(ctx, token, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		t := detail.Team
		fmt.Fprintf(out, "%s  %s  [%s]\n", t.ID, t.Name, t.ReviewStatus)
		fmt.Fprintf(out, "mentor: %s  capacity: %d  resubmissions: %d\n", t.MentorID, t.Capacity, t.Resubmissions)
		for _, m := range t.Members {
			fmt.Fprintf(out, "  - %s %s\n", m.UserID, m.Name)
		}
		if sub := detail.Submission; sub != nil {
			fmt.Fprintf(out, "submission %s: %s", sub.ID, sub.Status)
			if sub.FinalScore != nil {
				fmt.Fprintf(out, " score=%d/%d", *sub.FinalScore, domain.MaxFinalScore)
			}
			fmt.Fprintln(out)
			if sub.MentorFeedback != "" {
				fmt.Fprintf(out, "feedback: %s\n", sub.MentorFeedback)
			}
		}
		return nil
	},
}

var teamsJoinCmd = &cobra.Command{
	Use:   "join <team-id>",
	Short: "Join a team that has room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		team, err := client.JoinTeam(ctx, token, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "joined %s (%d/%d members)\n", team.Name, len(team.Members), team.Capacity)
		return nil
	},
}

var teamsSubmitCmd = &cobra.Command{
	Use:   "submit <team-id>",
	Short: "Submit the team's work for mentor review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		sub, err := client.SubmitTeam(ctx, token, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "submitted %s (%d files)\n", sub.ID, len(sub.FileIDs))
		return nil
	},
}

func init() {
	teamsListCmd.Flags().BoolVar(&teamsJoinable, "joinable", false, "list teams with open seats instead of your own")
	teamsCreateCmd.Flags().StringVar(&createName, "name", "", "team name")
	teamsCreateCmd.Flags().IntVar(&createCapacity, "capacity", 4, "maximum members")
	teamsCreateCmd.Flags().StringSliceVar(&createSkills, "skills", nil, "required skills, comma separated")
	teamsCreateCmd.Flags().StringVar(&createMentor, "mentor", "", "mentor user id")
	teamsCmd.AddCommand(teamsListCmd, teamsCreateCmd, teamsShowCmd, teamsJoinCmd, teamsSubmitCmd)
	rootCmd.AddCommand(teamsCmd)
}
