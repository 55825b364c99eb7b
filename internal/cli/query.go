package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kbdash/internal/models"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		topK   int
		speech bool
		voice  string
	)

	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a question about the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withApp(opts, true, func(a *app) error {
				var (
					res models.QueryResult
					err error
				)
				if speech {
					res, err = a.dashboard.AskAloud(cmd.Context(), question, topK, voice)
				} else {
					res, err = a.dashboard.Ask(cmd.Context(), question, topK)
				}
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, res.Answer)
				if len(res.Sources) > 0 {
					fmt.Fprintf(out, "\n%d source(s)\n", len(res.Sources))
				}
				if res.AudioURL != "" {
					fmt.Fprintf(out, "audio: %s\n", res.AudioURL)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of passages to retrieve (default from config)")
	cmd.Flags().BoolVar(&speech, "speech", false, "also synthesize the answer")
	cmd.Flags().StringVar(&voice, "voice", "", "speech voice id")
	return cmd
}

func newSpeakCmd(opts *rootOptions) *cobra.Command {
	var voice string

	cmd := &cobra.Command{
		Use:   "speak TEXT...",
		Short: "Synthesize speech",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				res, err := a.dashboard.Speak(cmd.Context(), strings.Join(args, " "), voice)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.AudioURL)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "speech voice id")
	return cmd
}

func newVoicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List speech voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				voices, err := a.dashboard.Voices(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), voices)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tLANGUAGE\tGENDER")
				for _, v := range voices {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Language, v.Gender)
				}
				return w.Flush()
			})
		},
	}
}
