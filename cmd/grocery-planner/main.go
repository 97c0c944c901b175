package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"grocery-planner/internal/app"
	"grocery-planner/internal/config"
	"grocery-planner/internal/logging"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	command := "tui"
	args := []string{}
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if command == "tui" {
		// log lines would tear the screen
		f, err := os.OpenFile("grocery-planner.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	if err := run(ctx, application, cfg, command, args); err != nil {
		logger.WithError(err).Error("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		application.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cfg *config.Config, command string, args []string) error {
	switch command {
	case "tui":
		kind, err := planner.ParseMealKind(cfg.DefaultMealKind)
		if err != nil {
			kind = planner.KindDinner
		}
		model := tui.New(a.Core, a.Backend.LoginURL(), kind, cfg.DefaultMealCount)
		_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err

	case "status":
		return a.PrintStatus(ctx, os.Stdout)

	case "stores":
		storesCmd := flag.NewFlagSet("stores", flag.ExitOnError)
		zip := storesCmd.String("zip", cfg.DefaultZip, "Zip code to search near")
		storesCmd.Parse(args)
		return a.PrintStores(ctx, os.Stdout, *zip)

	case "plan":
		planCmd := flag.NewFlagSet("plan", flag.ExitOnError)
		kindName := planCmd.String("kind", cfg.DefaultMealKind, "Meal kind: breakfast, lunch, dinner, snack or dessert")
		count := planCmd.Int("count", cfg.DefaultMealCount, "Number of meals")
		desc := planCmd.String("desc", "", "What the meals should be (required)")
		zip := planCmd.String("zip", cfg.DefaultZip, "Zip code for the store search")
		store := planCmd.String("store", "", "Location id of the store to stage against")
		withReport := planCmd.Bool("report", false, "Download the meal plan report after staging")
		planCmd.Parse(args)

		if *desc == "" {
			planCmd.Usage()
			return fmt.Errorf("-desc is required")
		}
		kind, err := planner.ParseMealKind(*kindName)
		if err != nil {
			return err
		}
		return a.RunPlan(ctx, os.Stdout, app.PlanOptions{
			Description: *desc,
			Kind:        kind,
			Count:       *count,
			Zip:         *zip,
			StoreID:     *store,
			Report:      *withReport,
		})

	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(args)
		return a.CleanupMetrics(os.Stdout, *days)

	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Println("Usage: grocery-planner <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  tui                Interactive planner (default)")
	fmt.Println("  status             Check the Kroger connection")
	fmt.Println("  stores -zip Z      List stores near a zip code")
	fmt.Println("  plan -desc D       Generate a plan and stage the cart (-kind, -count, -zip, -store, -report)")
	fmt.Println("  metrics-cleanup    Remove old metric records")
}
