package main

import (
	"os"

	"github.com/spf13/cobra"

	"travelPlannerAPI/internal/calendar"
)

func SetupCommands(a *App) *cobra.Command {
	// root command
	rootCmd := &cobra.Command{
		Use:           "plannerctl",
		Short:         "Inspect and edit travel itineraries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&a.user, "user", "u", os.Getenv("PLANNER_USER"), "user id whose schedule to use")

	gridCmd := func(use, short string, span calendar.Span) *cobra.Command {
		return &cobra.Command{
			Use:   use + " [date]",
			Short: short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ref, err := a.dateArg(args, 0)
				if err != nil {
					return err
				}
				return a.PrintGrid(cmd.Context(), ref, span)
			},
		}
	}

	// command for listing one day
	listCmd := &cobra.Command{
		Use:   "list [date]",
		Short: "List the itinerary of a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args, 0)
			if err != nil {
				return err
			}
			return a.List(cmd.Context(), date)
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <date> <destination> [place]",
		Short: "Plan a destination on a day",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args, 0)
			if err != nil {
				return err
			}
			var place string
			if len(args) > 2 {
				place = args[2]
			}
			return a.Add(cmd.Context(), date, args[1], place)
		},
	}

	var hour, minute, plan string
	setCmd := &cobra.Command{
		Use:   "set <date> <entry-id>",
		Short: "Change the time or plan of an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args, 0)
			if err != nil {
				return err
			}
			flag := func(name string, v *string) *string {
				if cmd.Flags().Changed(name) {
					return v
				}
				return nil
			}
			return a.Set(cmd.Context(), date, args[1], flag("hour", &hour), flag("minute", &minute), flag("plan", &plan))
		},
	}
	setCmd.Flags().StringVar(&hour, "hour", "", "hour of day, 0-23 (24 clears the time)")
	setCmd.Flags().StringVar(&minute, "minute", "", "minute, 0-59")
	setCmd.Flags().StringVar(&plan, "plan", "", "free-form plan")

	clearCmd := &cobra.Command{
		Use:   "clear <date> <entry-id>",
		Short: "Remove an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args, 0)
			if err != nil {
				return err
			}
			return a.Clear(cmd.Context(), date, args[1])
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch [date]",
		Short: "Print the itinerary of a day every time it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := a.dateArg(args, 0)
			if err != nil {
				return err
			}
			return a.Watch(cmd.Context(), date)
		},
	}

	var spanFlag string
	exportCmd := &cobra.Command{
		Use:   "export [date]",
		Short: "Write the itinerary around a day as iCalendar",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := a.dateArg(args, 0)
			if err != nil {
				return err
			}
			span, err := calendar.ParseSpan(spanFlag)
			if err != nil {
				return err
			}
			return a.Export(cmd.Context(), ref, span)
		},
	}
	exportCmd.Flags().StringVar(&spanFlag, "span", string(calendar.SpanWeek), "week or fortnight")

	// add commands
	rootCmd.AddCommand(gridCmd("week", "Show the week around a day", calendar.SpanWeek))
	rootCmd.AddCommand(gridCmd("fortnight", "Show the two weeks starting with the week of a day", calendar.SpanFortnight))
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)

	return rootCmd
}
