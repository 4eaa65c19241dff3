// Package main provides the timer control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/freetime/internal/api/connect"
)

var (
	app     = kingpin.New("timerctl", "freetime focus timer client")
	server  = app.Flag("server", "Daemon address").Default("http://127.0.0.1:7425").Envar("FREETIME_SERVER").String()
	token   = app.Flag("token", "Control API token (or set FREETIME_TOKEN env)").Envar("FREETIME_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("5s").Duration()

	startCmd  = app.Command("start", "Start or continue the timer")
	pauseCmd  = app.Command("pause", "Pause the timer")
	resumeCmd = app.Command("resume", "Resume a paused timer")
	resetCmd  = app.Command("reset", "Reset to a fresh work phase")
	stopCmd   = app.Command("stop", "Stop the timer, keeping the current phase")
	statusCmd = app.Command("status", "Show the timer state").Default()
	watchCmd  = app.Command("watch", "Follow the timer until interrupted")
)

var (
	workColor    = color.New(color.FgRed, color.Bold)
	breakColor   = color.New(color.FgGreen, color.Bold)
	waitColor    = color.New(color.FgYellow, color.Bold)
	dimColor     = color.New(color.Faint)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	if command == watchCmd.FullCommand() {
		watch(client)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		resp *apiconnect.CommandResponse
		err  error
	)
	switch command {
	case startCmd.FullCommand():
		resp, err = client.Start(ctx)
	case pauseCmd.FullCommand():
		resp, err = client.Pause(ctx)
	case resumeCmd.FullCommand():
		resp, err = client.Resume(ctx)
	case resetCmd.FullCommand():
		resp, err = client.Reset(ctx)
	case stopCmd.FullCommand():
		resp, err = client.Stop(ctx)
	case statusCmd.FullCommand():
		resp, err = client.GetSnapshot(ctx)
	}
	if err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !resp.Applied {
		warnColor.Printf("Ignored: %s\n", resp.Message)
	} else if command != statusCmd.FullCommand() {
		successColor.Printf("OK: %s\n", command)
	}
	printSnapshot(resp.Snapshot)
}

func watch(client *apiconnect.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Println("Watching timer. Press Ctrl+C to exit.")

	err := client.Watch(ctx, func(ev *apiconnect.WatchEvent) error {
		switch {
		case ev.Completion != nil:
			fmt.Println()
			printCompletion(*ev.Completion)
		case ev.Snapshot != nil:
			fmt.Print("\r")
			printSnapshotLine(*ev.Snapshot)
		}
		return nil
	})
	fmt.Println()
	if err != nil && ctx.Err() == nil {
		errorColor.Fprintf(os.Stderr, "Stream error: %v\n", err)
		os.Exit(1)
	}
}

func printSnapshot(s apiconnect.Snapshot) {
	printSnapshotLine(s)
	fmt.Println()
}

func printSnapshotLine(s apiconnect.Snapshot) {
	phaseColor(s.Phase).Printf("%-14s", s.Phase)
	fmt.Printf(" %s ", formatRemaining(s.RemainingSeconds))
	dimColor.Printf("%-8s cycle %d", s.Status, s.CycleIndex)
}

func printCompletion(c apiconnect.Completion) {
	fmt.Printf("[%s] ", c.At.Local().Format(time.TimeOnly))
	phaseColor(c.Ended).Print(c.Ended)
	fmt.Print(" finished, ")
	phaseColor(c.Started).Print(c.Started)
	fmt.Printf(" begins (#%d)\n", c.Seq)
}

func phaseColor(phase string) *color.Color {
	switch phase {
	case "WORK":
		return workColor
	case "SHORT_BREAK", "LONG_BREAK":
		return breakColor
	default:
		return waitColor
	}
}

func formatRemaining(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
