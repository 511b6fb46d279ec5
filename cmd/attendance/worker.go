package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/spf13/cobra"
)

var (
	eventAt      string
	historyFrom  string
	historyTo    string
	historyMonth string
	historyDate  string
	historyLimit int
	statusAtFlag string
)

var checkinCmd = &cobra.Command{
	Use:   "checkin [flags] USER_ID",
	Short: "Record a check-in",
	Long:  `Record a check-in for a user, as if the user had pressed the check-in button.`,
	Example: `  attendance checkin 42
  attendance -c config.yaml checkin --at 2024-05-06T09:00:00+02:00 42`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckIn,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout [flags] USER_ID",
	Short: "Record a check-out",
	Long:  `Close the user's open session for the day and report the session and daily totals.`,
	Example: `  attendance checkout 42
  attendance checkout --at 2024-05-06T17:30:00+02:00 42`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckOut,
}

var statusCmd = &cobra.Command{
	Use:   "status [flags] USER_ID",
	Short: "Show a user's attendance status for today",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history [flags] USER_ID",
	Short: "Show a user's attendance history",
	Long: `Show a user's daily records, newest first. Select a range with --from/--to,
a single day with --date, or a calendar month with --month.`,
	Example: `  attendance history 42 --limit 7
  attendance history 42 --month 2024-05
  attendance history 42 --from 2024-05-01 --to 2024-05-15`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	checkinCmd.Flags().StringVar(&eventAt, "at", "", "Event time in RFC 3339 (defaults to now)")
	checkoutCmd.Flags().StringVar(&eventAt, "at", "", "Event time in RFC 3339 (defaults to now)")
	statusCmd.Flags().StringVar(&statusAtFlag, "at", "", "Report status as of this RFC 3339 time (defaults to now)")

	historyCmd.Flags().StringVar(&historyFrom, "from", "", "First day (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "Last day (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyMonth, "month", "", "Calendar month (YYYY-MM)")
	historyCmd.Flags().StringVar(&historyDate, "date", "", "Single day (YYYY-MM-DD)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Show at most this many days")
	historyCmd.MarkFlagsMutuallyExclusive("month", "date", "from")
	historyCmd.MarkFlagsMutuallyExclusive("month", "date", "to")

	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func runCheckIn(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	at, err := parseAt(eventAt)
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.CheckIn(context.Background(), userID, at)
	if err != nil {
		return userFailure(err)
	}

	if result.Outcome.Changed() {
		green.Println(result.Message())
	} else {
		yellow.Println(result.Message())
	}
	fmt.Printf("Outcome:    %s\n", result.Outcome)
	fmt.Printf("Sessions:   %d\n", len(result.Record.Sessions))
	return nil
}

func runCheckOut(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	at, err := parseAt(eventAt)
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.CheckOut(context.Background(), userID, at)
	if err != nil {
		return userFailure(err)
	}

	green.Println(result.Message())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	at, err := parseAt(statusAtFlag)
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	status, err := a.ledger.Status(ctx, userID, at)
	if err != nil {
		return userFailure(err)
	}

	printBanner("ATTENDANCE STATUS")
	fmt.Printf("User:       %s (%d)\n", a.directory.DisplayName(ctx, userID), userID)
	fmt.Printf("Day:        %s\n", a.zone.DayKey(status.Day))
	fmt.Printf("Sessions:   %d\n", status.Sessions)
	fmt.Println()

	cyan.Print("Status:     ")
	switch status.Kind {
	case attendance.StatusOpen:
		yellow.Println("CHECKED IN")
	case attendance.StatusClosed:
		green.Println("CHECKED OUT")
	default:
		fmt.Println("NOT CHECKED IN")
	}
	fmt.Printf("            → %s\n", status.Message())
	fmt.Println()
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	name := a.directory.DisplayName(ctx, userID)

	if historyMonth != "" {
		m, err := time.ParseInLocation("2006-01", historyMonth, a.zone.Location())
		if err != nil {
			return fmt.Errorf("invalid month %q (expected YYYY-MM): %w", historyMonth, err)
		}
		summary, err := a.ledger.Month(ctx, userID, m.Year(), m.Month())
		if err != nil {
			return userFailure(err)
		}

		printBanner(fmt.Sprintf("ATTENDANCE %s %d - %s", summary.Month, summary.Year, name))
		printRecords(summary.Records)
		fmt.Println()
		fmt.Printf("Days present:   %d\n", summary.DaysPresent)
		fmt.Printf("Complete days:  %d\n", summary.CompleteDays)
		fmt.Printf("Total hours:    %s\n", attendance.FormatHours(summary.TotalHours))
		fmt.Println()
		return nil
	}

	from, to := historyFrom, historyTo
	if historyDate != "" {
		from, to = historyDate, historyDate
	}
	fromDay, err := parseDay(a.zone, from)
	if err != nil {
		return err
	}
	toDay, err := parseDay(a.zone, to)
	if err != nil {
		return err
	}

	records, err := a.ledger.History(ctx, userID, fromDay, toDay)
	if err != nil {
		return userFailure(err)
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	printBanner("ATTENDANCE HISTORY - " + name)
	printRecords(records)
	fmt.Println()
	return nil
}
