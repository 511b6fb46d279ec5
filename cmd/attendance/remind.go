package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goodtune/attendance/internal/reminder"
	"github.com/spf13/cobra"
)

var remindAt string

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run one reminder tick",
	Long: `Run the shift reminder check once, as the server's ticker would, and report
who was reminded. Reminders already sent for a shift are not sent again.`,
	Example: `  attendance remind
  attendance remind --at 2024-05-06T20:05:00+02:00`,
	Args: cobra.NoArgs,
	RunE: runRemind,
}

func init() {
	remindCmd.Flags().StringVar(&remindAt, "at", "", "Evaluate shifts as of this RFC 3339 time (defaults to now)")
	rootCmd.AddCommand(remindCmd)
}

func runRemind(cmd *cobra.Command, args []string) error {
	at, err := parseAt(remindAt)
	if err != nil {
		return err
	}

	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	reminderConfig, err := reminder.FromConfig(a.cfg.Reminders)
	if err != nil {
		return fmt.Errorf("invalid reminder configuration: %w", err)
	}

	engine, err := reminder.NewEngine(
		reminderConfig,
		a.ledger,
		a.store.Reminders(),
		a.directory,
		a.notifier,
		a.clock,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Reminder Engine: %w", err)
	}

	if at.IsZero() {
		at = a.clock.Now()
	}

	result, err := engine.RunOnce(context.Background(), at)
	if err != nil {
		return userFailure(err)
	}

	printBanner("REMINDER CHECK")
	fmt.Printf("Time:       %s\n", a.zone.In(at).Format("2006-01-02 15:04:05 MST"))
	if len(result.Shifts) == 0 {
		fmt.Println("Shifts:     (none ending)")
		fmt.Println()
		return nil
	}
	fmt.Printf("Shifts:     %v\n", result.Shifts)
	fmt.Printf("Open:       %d\n", result.Open)
	fmt.Println()

	if len(result.Reminded) == 0 {
		green.Println("No new reminders")
	}
	for _, r := range result.Reminded {
		line := fmt.Sprintf("%s (%d) %s shift, checked in at %s",
			r.Name, r.UserID, r.Shift, a.zone.In(r.OpenSince).Format(clockLayout))
		if r.Delivered {
			yellow.Println("⏰ " + line)
		} else {
			red.Println("✗ " + line + " (delivery failed)")
		}
	}
	fmt.Printf("Admin alerts: %d\n", result.AdminAlerts)
	fmt.Println()
	return nil
}
