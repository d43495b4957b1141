package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const transferTimeout = 5 * time.Minute

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage a team's shared files",
}

var downloadOutput string

var filesListCmd = &cobra.Command{
	Use:   "list <team-id>",
	Short: "List live files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		records, err := client.ListFiles(ctx, token, args[0])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSIZE\tUPLOADED BY\tUPLOADED AT")
		for _, f := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.ID, f.Filename, f.SizeBytes, f.UploadedBy, f.UploadedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <team-id> <path>",
	Short: "Upload a file while the team is not under review",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), transferTimeout)
		defer cancel()
		record, err := client.UploadFile(ctx, token, args[0], filepath.Base(args[1]), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s, %d bytes)\n", record.Filename, record.ID, record.SizeBytes)
		return nil
	},
}

var filesDownloadCmd = &cobra.Command{
	Use:   "download <team-id> <file-id>",
	Short: "Download a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if downloadOutput != "" {
			f, err := os.Create(downloadOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), transferTimeout)
		defer cancel()
		n, err := client.DownloadFile(ctx, token, args[0], args[1], out)
		if err != nil {
			return err
		}
		if downloadOutput != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, downloadOutput)
		}
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:     "rm <team-id> <file-id>",
	Aliases: []string{"delete"},
	Short:   "Delete a file",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
		defer cancel()
		if err := client.DeleteFile(ctx, token, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "file deleted")
		return nil
	},
}

func init() {
	filesDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "write to this path instead of stdout")
	filesCmd.AddCommand(filesListCmd, filesUploadCmd, filesDownloadCmd, filesDeleteCmd)
	rootCmd.AddCommand(filesCmd)
}
