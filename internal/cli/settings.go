package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kbdash/internal/models"
)

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, raw)
	}
	return id, nil
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the answer model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				list, err := a.dashboard.Models(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), list)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tMODEL\tBUILT-IN\tACTIVE")
				for _, m := range list {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%t\n", m.ID, m.Name, m.Provider, m.ModelID, m.IsBuiltIn, m.IsActive)
				}
				return w.Flush()
			})
		},
	}
	cmd.AddCommand(newModelsAddCmd(opts), newModelsDeleteCmd(opts))
	return cmd
}

func newModelsAddCmd(opts *rootOptions) *cobra.Command {
	var req models.CustomModelRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a custom model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				model, err := a.dashboard.AddCustomModel(cmd.Context(), req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), model)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added model %d (%s)\n", model.ID, model.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Provider, "provider", "", "provider, e.g. openai")
	cmd.Flags().StringVar(&req.ModelID, "model-id", "", "provider model identifier")
	cmd.Flags().StringVar(&req.APIBaseURL, "base-url", "", "provider API base URL")
	cmd.Flags().StringVar(&req.Description, "description", "", "free text description")
	return cmd
}

func newModelsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a custom model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("model", args[0])
			if err != nil {
				return err
			}
			return withApp(opts, true, func(a *app) error {
				if err := a.dashboard.DeleteCustomModel(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted model %d\n", id)
				return nil
			})
		},
	}
}

func newPrefsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Manage per-user model preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				prefs, err := a.dashboard.Preferences(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), prefs)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tMODEL\tKEY SET\tDEFAULT")
				for _, p := range prefs {
					model := strconv.FormatInt(p.ModelID, 10)
					if p.Model != nil {
						model = p.Model.Name
					}
					fmt.Fprintf(w, "%d\t%s\t%t\t%t\n", p.ID, model, p.APIKeySet, p.IsDefault)
				}
				return w.Flush()
			})
		},
	}
	cmd.AddCommand(newPrefsSetCmd(opts), newPrefsDeleteCmd(opts), newPrefsDefaultCmd(opts))
	return cmd
}

func newPrefsSetCmd(opts *rootOptions) *cobra.Command {
	var (
		id  int64
		req models.PreferenceRequest
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create a preference, or update one with --id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				pref, err := a.dashboard.SavePreference(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), pref)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved preference %d for model %d\n", pref.ID, pref.ModelID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&id, "id", 0, "existing preference id")
	cmd.Flags().Int64Var(&req.ModelID, "model-id", 0, "catalog model id")
	cmd.Flags().StringVar(&req.APIKey, "api-key", "", "provider API key")
	cmd.Flags().BoolVar(&req.IsDefault, "default", false, "make this the default model")
	_ = cmd.MarkFlagRequired("model-id")
	return cmd
}

func newPrefsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("preference", args[0])
			if err != nil {
				return err
			}
			return withApp(opts, true, func(a *app) error {
				if err := a.dashboard.DeletePreference(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted preference %d\n", id)
				return nil
			})
		},
	}
}

func newPrefsDefaultCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Show the default model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, true, func(a *app) error {
				model, err := a.dashboard.DefaultModel(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), model)
				}
				if model.ModelID == 0 {
					msg := model.Message
					if msg == "" {
						msg = "no default model set"
					}
					fmt.Fprintln(cmd.OutOrStdout(), msg)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), api key set: %t\n", model.ModelName, model.Provider, model.APIKeySet)
				return nil
			})
		},
	}
}
