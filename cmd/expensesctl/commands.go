package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"expenses/internal/form"
	"expenses/internal/legacy"
)

func NewRootCommand(a *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "expensesctl",
		Short:         "Inspect and maintain saved expense weeks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		weeksCommand(a),
		namespacesCommand(a),
		showCommand(a),
		editCommand(a),
		exportCommand(a),
		migrateCommand(a),
		tokenCommand(a),
	)
	return rootCmd
}

// syncFlags registers --sync and --week on cmd.
func syncFlags(cmd *cobra.Command, namespace, weekEnding *string) {
	cmd.Flags().StringVar(namespace, "sync", "", "sync name (namespace)")
	_ = cmd.MarkFlagRequired("sync")
	cmd.Flags().StringVar(weekEnding, "week", "", "week ending date, YYYY-MM-DD (default: most recent)")
}

func weeksCommand(a *App) *cobra.Command {
	var (
		namespace string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "weeks",
		Short: "List the saved weeks of a sync name, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ListWeeks(cmd.Context(), namespace, asJSON)
		},
	}
	cmd.Flags().StringVar(&namespace, "sync", "", "sync name (namespace)")
	_ = cmd.MarkFlagRequired("sync")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func namespacesCommand(a *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "namespaces",
		Short: "List every sync name with its week count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ListNamespaces(cmd.Context(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func showCommand(a *App) *cobra.Command {
	var namespace, weekEnding, sunday string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a week with mileage and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Show(cmd.Context(), namespace, weekEnding, sunday)
		},
	}
	syncFlags(cmd, &namespace, &weekEnding)
	cmd.Flags().StringVar(&sunday, "sunday", "", "first day of the week, YYYY-MM-DD, instead of --week")
	return cmd
}

func editCommand(a *App) *cobra.Command {
	var (
		namespace, weekEnding, sunday string
		delay                         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a week from line commands on stdin, autosaving as you go",
		Long: `Reads one command per line and saves after a pause in editing:

  set ROW DAY VALUE   set a cell; DAY is 0-6 or SUN..SAT
  clear ROW DAY       blank a cell
  purpose TEXT        set the business purpose
  show                print the week`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Edit(cmd.Context(), namespace, weekEnding, sunday, delay)
		},
	}
	cmd.Flags().StringVar(&namespace, "sync", "", "sync name (namespace)")
	_ = cmd.MarkFlagRequired("sync")
	cmd.Flags().StringVar(&weekEnding, "week", "", "week ending date, YYYY-MM-DD")
	cmd.Flags().StringVar(&sunday, "sunday", "", "first day of the week, YYYY-MM-DD; the week ends six days later")
	cmd.MarkFlagsOneRequired("week", "sunday")
	cmd.MarkFlagsMutuallyExclusive("week", "sunday")
	cmd.Flags().DurationVar(&delay, "autosave", form.DefaultAutosaveDelay, "pause before an edit is saved")
	return cmd
}

func exportCommand(a *App) *cobra.Command {
	var (
		namespace, weekEnding string
		template, out         string
		google                bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fill the expense template with a saved week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if google {
				id, err := a.ExportSheets(cmd.Context(), namespace, weekEnding)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.Out, "https://docs.google.com/spreadsheets/d/%s\n", id)
				return nil
			}
			path, err := a.ExportXLSX(cmd.Context(), namespace, weekEnding, template, out)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, path)
			return nil
		},
	}
	syncFlags(cmd, &namespace, &weekEnding)
	cmd.Flags().StringVar(&template, "template", "", "xlsx template (default: TEMPLATE_PATH)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: the week's file name)")
	cmd.Flags().BoolVar(&google, "google", false, "copy the Google Sheets template instead of writing a file")
	return cmd
}

func migrateCommand(a *App) *cobra.Command {
	var (
		opts   legacy.Options
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "migrate-legacy",
		Short: "Rewrite legacy single-part keys into expenses:<sync>:<weekEnding>",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.MigrateLegacy(cmd.Context(), opts, asJSON)
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report without writing")
	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "keep legacy keys after copying")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace records already at the target key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func tokenCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for AUTH_USER",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.Token()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, token)
			return nil
		},
	}
}
