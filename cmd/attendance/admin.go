package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/goodtune/attendance/internal/attendance"
	"github.com/goodtune/attendance/internal/storage"
	"github.com/spf13/cobra"
)

var (
	actingAdmin int64
	reportFrom  string
	reportTo    string
	reportJSON  bool
	userFirst   string
	userLast    string
	userHandle  string
	userAdmin   bool
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's attendance for all users (admin)",
	RunE:  runToday,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export attendance records for a date range (admin)",
	Example: `  attendance report --as 1 --from 2024-05-01 --to 2024-05-31
  attendance report --as 1 --from 2024-05-01 --to 2024-05-31 --json > may.json`,
	RunE: runReport,
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersAddCmd = &cobra.Command{
	Use:   "add [flags] USER_ID",
	Short: "Register or update a user",
	Example: `  attendance users add 42 --first Ana --last Lima
  attendance users add 1 --first Owner --admin`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	Args:  cobra.NoArgs,
	RunE:  runUsersList,
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove USER_ID",
	Short: "Remove a user from the directory, keeping attendance records",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersRemove,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete attendance data (admin)",
}

var purgeRecordCmd = &cobra.Command{
	Use:     "record [flags] USER_ID DAY",
	Short:   "Delete one day's attendance record",
	Example: `  attendance purge record --as 1 42 2024-05-06`,
	Args:    cobra.ExactArgs(2),
	RunE:    runPurgeRecord,
}

var purgeClearCmd = &cobra.Command{
	Use:   "clear [flags] USER_ID",
	Short: "Delete all attendance records of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurgeClear,
}

var purgeUserCmd = &cobra.Command{
	Use:   "user [flags] USER_ID",
	Short: "Delete a user and all of their attendance records",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurgeUser,
}

func init() {
	for _, c := range []*cobra.Command{todayCmd, reportCmd, purgeRecordCmd, purgeClearCmd, purgeUserCmd} {
		c.Flags().Int64Var(&actingAdmin, "as", 0, "Acting admin user id (required)")
		c.MarkFlagRequired("as")
	}

	reportCmd.Flags().StringVar(&reportFrom, "from", "", "First day (YYYY-MM-DD, required)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "Last day (YYYY-MM-DD, required)")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Write rows as JSON")
	reportCmd.MarkFlagRequired("from")
	reportCmd.MarkFlagRequired("to")

	usersAddCmd.Flags().StringVar(&userFirst, "first", "", "First name")
	usersAddCmd.Flags().StringVar(&userLast, "last", "", "Last name")
	usersAddCmd.Flags().StringVar(&userHandle, "username", "", "Chat username")
	usersAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant admin privileges")

	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersRemoveCmd)

	purgeCmd.AddCommand(purgeRecordCmd)
	purgeCmd.AddCommand(purgeClearCmd)
	purgeCmd.AddCommand(purgeUserCmd)

	rootCmd.AddCommand(todayCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(purgeCmd)
}

func runToday(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.service.Today(context.Background(), actingAdmin)
	if err != nil {
		return userFailure(err)
	}

	printBanner("TODAY'S ATTENDANCE - " + a.zone.DayKey(a.ledger.Now()))
	if len(entries) == 0 {
		fmt.Println("No one has checked in today")
		fmt.Println()
		return nil
	}

	open := 0
	fmt.Printf("%-24s %-10s %-10s %s\n", "User", "First in", "Last out", "Hours")
	for _, e := range entries {
		out := "-"
		if e.Record.LastCheckOut != nil {
			out = e.Record.LastCheckOut.Format(clockLayout)
		}
		line := fmt.Sprintf("%-24s %-10s %-10s %s",
			e.Name, e.Record.FirstCheckIn.Format(clockLayout), out, attendance.FormatHours(e.Record.TotalHours))
		if e.Open {
			open++
			yellow.Println(line + "  (checked in)")
		} else {
			fmt.Println(line)
		}
	}
	fmt.Println()
	fmt.Printf("Present:    %d\n", len(entries))
	fmt.Printf("Still in:   %d\n", open)
	fmt.Println()
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	from, err := parseDay(a.zone, reportFrom)
	if err != nil {
		return err
	}
	to, err := parseDay(a.zone, reportTo)
	if err != nil {
		return err
	}

	rows, err := a.service.Report(context.Background(), actingAdmin, from, to)
	if err != nil {
		return userFailure(err)
	}

	if reportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	printBanner(fmt.Sprintf("ATTENDANCE REPORT %s .. %s", reportFrom, reportTo))
	fmt.Printf("%-12s %-24s %-10s %-10s %-8s %s\n", "Day", "User", "First in", "Last out", "Hours", "Sessions")
	total := 0.0
	for _, row := range rows {
		out := "-"
		if row.LastCheckOut != nil {
			out = row.LastCheckOut.Format(clockLayout)
		}
		fmt.Printf("%-12s %-24s %-10s %-10s %-8s %d\n",
			row.Day, row.Name, row.FirstCheckIn.Format(clockLayout), out,
			attendance.FormatHours(row.TotalHours), row.SessionCount)
		total += row.TotalHours
	}
	fmt.Println()
	fmt.Printf("Rows:         %d\n", len(rows))
	fmt.Printf("Total hours:  %s\n", attendance.FormatHours(storage.RoundHours(total)))
	fmt.Println()
	return nil
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	if userFirst == "" && userHandle == "" {
		return fmt.Errorf("either --first or --username is required")
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.directory.Register(context.Background(), storage.User{
		ID:        userID,
		FirstName: userFirst,
		LastName:  userLast,
		Username:  userHandle,
		IsAdmin:   userAdmin,
	})
	if err != nil {
		return userFailure(err)
	}

	green.Printf("✅ Registered %s (%d)", user.DisplayName(), user.ID)
	if user.IsAdmin {
		yellow.Print(" [admin]")
	}
	fmt.Println()
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	list, err := a.directory.List(ctx)
	if err != nil {
		return userFailure(err)
	}
	admins, err := a.directory.AdminIDs(ctx)
	if err != nil {
		return userFailure(err)
	}
	isAdmin := make(map[int64]bool, len(admins))
	for _, id := range admins {
		isAdmin[id] = true
	}

	printBanner("USERS")
	fmt.Printf("%-14s %-24s %-16s %s\n", "ID", "Name", "Username", "Registered")
	for _, u := range list {
		line := fmt.Sprintf("%-14d %-24s %-16s %s",
			u.ID, u.DisplayName(), u.Username, a.zone.In(u.CreatedAt).Format(time.DateTime))
		if isAdmin[u.ID] {
			yellow.Println(line + "  [admin]")
		} else {
			fmt.Println(line)
		}
	}
	fmt.Println()
	fmt.Printf("Users:      %d\n", len(list))
	fmt.Printf("Admins:     %v\n", admins)
	fmt.Println()
	return nil
}

func runUsersRemove(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.directory.Remove(context.Background(), userID); err != nil {
		return userFailure(err)
	}
	green.Printf("✅ Removed user %d\n", userID)
	return nil
}

func runPurgeRecord(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	day, err := parseDay(a.zone, args[1])
	if err != nil {
		return err
	}

	if err := a.service.DeleteRecord(context.Background(), actingAdmin, userID, day); err != nil {
		return userFailure(err)
	}
	green.Println(attendance.PurgeMessage("record", 1))
	return nil
}

func runPurgeClear(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.service.ClearAttendance(context.Background(), actingAdmin, userID)
	if err != nil {
		return userFailure(err)
	}
	green.Println(attendance.PurgeMessage("clear", n))
	return nil
}

func runPurgeUser(cmd *cobra.Command, args []string) error {
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.service.DeleteUser(context.Background(), actingAdmin, userID)
	if err != nil {
		return userFailure(err)
	}
	green.Println(attendance.PurgeMessage("user", n))
	return nil
}
