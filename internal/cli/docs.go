package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"kbdash/internal/dashboard"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show documents count and backend status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				overview := a.dashboard.Overview(cmd.Context())
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), overview)
				}
				st := overview.Status
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "Status:\t%s\n", st.Status)
				fmt.Fprintf(w, "Documents:\t%d\n", st.DocumentsCount)
				fmt.Fprintf(w, "Model:\t%s\n", st.ModelStatus)
				if st.CurrentModel != nil {
					fmt.Fprintf(w, "Current model:\t%s (%s)\n", st.CurrentModel.Name, st.CurrentModel.Provider)
				}
				if st.MemoryUsage != "" || st.CPUUsage != "" {
					fmt.Fprintf(w, "Resources:\tmem %s, cpu %s\n", st.MemoryUsage, st.CPUUsage)
				}
				if overview.StatusError != "" {
					fmt.Fprintf(w, "Warning:\t%s\n", overview.StatusError)
				}
				return w.Flush()
			})
		},
	}
}

func newDocsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List, upload and delete documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				docs, err := a.dashboard.Documents(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), docs)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tSIZE\tUPLOADED")
				for _, d := range docs {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.ID, d.OriginalFilename, humanSize(d.FileSize), d.UploadTime.Local().Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}
	cmd.AddCommand(newDocsUploadCmd(opts), newDocsDeleteCmd(opts))
	return cmd
}

func newDocsUploadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files (validated together, sent one by one)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]dashboard.FileInput, 0, len(args))
			for _, path := range args {
				path := path // per-iteration copy; module targets go 1.21 loop semantics
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("stat %s: %w", path, err)
				}
				if info.IsDir() {
					return fmt.Errorf("%s is a directory", path)
				}
				files = append(files, dashboard.FileInput{
					Name: path,
					Size: info.Size(),
					Open: func() (io.ReadCloser, error) { return os.Open(path) },
				})
			}
			return withApp(opts, true, func(a *app) error {
				results, err := a.dashboard.Upload(cmd.Context(), files)
				for i, res := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s %s\n", filepath.Base(files[i].Name), res.Message)
				}
				return err
			})
		},
	}
}

func newDocsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return withApp(opts, true, func(a *app) error {
				if err := a.dashboard.DeleteDocument(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted document %d\n", id)
				return nil
			})
		},
	}
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
