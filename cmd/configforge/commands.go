package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"configforge/internal/core"
	"configforge/pkg/domain"
)

func parseLevel(s string) (domain.Level, error) {
	n, err := strconv.Atoi(s)
	level := domain.Level(n)
	if err != nil || !level.Selectable() {
		return 0, fmt.Errorf("%w: %q (want 1-4)", domain.ErrInvalidLevel, s)
	}
	return level, nil
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func (c *cli) printState(w io.Writer) error {
	st := c.app.Service.State()
	if c.jsonOut {
		return writeJSON(w, st)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "STEP\t%d\n", st.CurrentStep)
	for level := domain.LevelIndustry; level <= domain.MaxHierarchyLevel; level++ {
		fmt.Fprintf(tw, "%s\t%s\n", strings.ToUpper(level.String()), st.Hierarchy.At(level))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PARAMETER\tVALUE\tDEFAULT\tUNITS")
	for _, p := range st.Parameters {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, formatValue(p.Value), formatValue(p.DefaultValue), p.Units)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CALCULATION\tVALUE\tUNITS\tFORMULA")
	for _, calc := range st.Calculations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", calc.ID, formatValue(calc.Value), calc.Units, calc.Formula)
	}
	return tw.Flush()
}

func (c *cli) stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show hierarchy, parameters and calculations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printState(cmd.OutOrStdout())
		},
	}
}

func (c *cli) optionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options <level>",
		Short: "List the choices at a hierarchy level for the current selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			options := c.app.Service.Options(level)
			if c.jsonOut {
				if options == nil {
					options = []domain.HierarchyOption{}
				}
				return writeJSON(cmd.OutOrStdout(), options)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, opt := range options {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", opt.ID, opt.Name, opt.Description)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <level> <id>",
		Short: "Select a hierarchy option and add its calculation templates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(args[0])
			if err != nil {
				return err
			}
			if err := c.app.Service.SelectHierarchy(cmd.Context(), level, args[1]); err != nil {
				return err
			}
			return c.printState(cmd.OutOrStdout())
		},
	}
}

func (c *cli) setCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "set <parameter> <value>",
		Short: "Set a parameter field (value by default)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = args[1]
			switch core.ParameterField(field) {
			case core.ParamFieldValue, core.ParamFieldDefaultValue, core.ParamFieldLevel:
				f, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("%w: %q is not a number", domain.ErrInvalidValue, args[1])
				}
				value = f
			}
			if err := c.app.Service.UpdateParameter(cmd.Context(), args[0], core.ParameterField(field), value); err != nil {
				return err
			}
			return c.printState(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&field, "field", string(core.ParamFieldValue), "value|defaultValue|name|units|description|level")
	return cmd
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <parameter>",
		Short: "Clear a parameter override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Service.ResetParameter(cmd.Context(), args[0]); err != nil {
				return err
			}
			return c.printState(cmd.OutOrStdout())
		},
	}
}

func (c *cli) recalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Recompute every calculation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Service.Recalc(cmd.Context()); err != nil {
				return err
			}
			return c.printState(cmd.OutOrStdout())
		},
	}
}

func (c *cli) stepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step <n>",
		Short: "Record the wizard step (1-5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", domain.ErrInvalidStep, args[0])
			}
			return c.app.Service.SetCurrentStep(cmd.Context(), n)
		},
	}
}

func (c *cli) calcCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "calc",
		Short: "Create, edit and remove calculations",
	}

	var draft core.CalculationDraft
	draftFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&draft.Name, "name", "", "display name (required)")
		cmd.Flags().StringVar(&draft.Formula, "formula", "", "formula over parameter and calculation ids (required)")
		cmd.Flags().StringVar(&draft.Units, "units", "", "units")
		cmd.Flags().StringVar(&draft.Description, "description", "", "description")
	}
	save := func(cmd *cobra.Command, editID string) error {
		saved, err := c.app.Service.SaveCalculation(cmd.Context(), draft, editID)
		if err != nil {
			return err
		}
		if c.jsonOut {
			return writeJSON(cmd.OutOrStdout(), saved)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", saved.ID, formatValue(saved.Value))
		return nil
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a calculation",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return save(cmd, "") },
	}
	draftFlags(add)

	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a calculation's name, formula, units and description",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return save(cmd, args[0]) },
	}
	draftFlags(edit)

	set := &cobra.Command{
		Use:   "set <id> <field> <value>",
		Short: "Set one calculation field (name|formula|units|description)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Service.UpdateCalculation(cmd.Context(), args[0], core.CalculationField(args[1]), args[2]); err != nil {
				return err
			}
			return c.printState(cmd.OutOrStdout())
		},
	}

	remove := &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a calculation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Service.RemoveCalculation(cmd.Context(), args[0])
		},
	}

	parent.AddCommand(add, edit, set, remove)
	return parent
}

func readEnvelopes(cmd *cobra.Command, path string) ([]domain.PatchEnvelope, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var envelopes []domain.PatchEnvelope
	if err := json.NewDecoder(r).Decode(&envelopes); err != nil {
		return nil, fmt.Errorf("decode patches: %w", err)
	}
	return envelopes, nil
}

func (c *cli) printReport(w io.Writer, report core.ValidationReport) error {
	if c.jsonOut {
		return writeJSON(w, report)
	}
	for _, p := range report.Valid {
		fmt.Fprintf(w, "ok      %s\n", c.app.Service.DescribePatch(p))
	}
	for _, rej := range report.Rejected {
		fmt.Fprintf(w, "reject  #%d %s\n", rej.Index, rej.Reason)
	}
	return nil
}

func (c *cli) patchCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "patch",
		Short: "Validate or apply JSON patch lists (file or - for stdin)",
	}
	validate := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Check patches against the current configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envelopes, err := readEnvelopes(cmd, args[0])
			if err != nil {
				return err
			}
			return c.printReport(cmd.OutOrStdout(), c.app.Service.ValidatePatches(cmd.Context(), envelopes))
		},
	}
	apply := &cobra.Command{
		Use:   "apply <file|->",
		Short: "Apply the valid patches as one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envelopes, err := readEnvelopes(cmd, args[0])
			if err != nil {
				return err
			}
			report := c.app.Service.ValidatePatches(cmd.Context(), envelopes)
			if len(report.Valid) > 0 {
				if err := c.app.Service.ApplyPatches(cmd.Context(), report.Valid...); err != nil {
					return err
				}
			}
			return c.printReport(cmd.OutOrStdout(), report)
		},
	}
	parent.AddCommand(validate, apply)
	return parent
}

func (c *cli) askCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the assistant about the current configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.app.Service.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if apply {
				if err := c.app.Service.ApplySuggestions(cmd.Context(), result); err != nil {
					return err
				}
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, result.Answer)
			verb := "suggested"
			if apply {
				verb = "applied"
			}
			for _, p := range result.Suggestions {
				fmt.Fprintf(w, "%s: %s\n", verb, c.app.Service.DescribePatch(p))
			}
			for _, rej := range result.Rejected {
				fmt.Fprintf(w, "rejected: %s\n", rej.Reason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "apply valid suggestions immediately")
	return cmd
}

func (c *cli) reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Print the review document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), c.app.Service.ReviewDocument())
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "export",
		Short: "Save the configuration to the blob store, or manage saved ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := c.app.Service.SaveConfiguration(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", info.Key, info.Size)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := c.app.Service.ListConfigurations(cmd.Context())
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tSAVED")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.UTC().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a saved configuration document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := c.app.Service.GetConfiguration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}

	var expiry time.Duration
	url := &cobra.Command{
		Use:   "url <key>",
		Short: "Print a download link for a saved configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := c.app.Service.ConfigurationURL(cmd.Context(), args[0], expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	url.Flags().DurationVar(&expiry, "expiry", 0, "link lifetime where the driver signs links (default 15m)")

	remove := &cobra.Command{
		Use:     "rm <key>",
		Aliases: []string{"remove"},
		Short:   "Delete a saved configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Service.DeleteConfiguration(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	parent.AddCommand(list, get, url, remove)
	return parent
}
