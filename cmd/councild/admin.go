package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	"github.com/opencouncil/councild/internal/adapter/postgres"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/port/database"
	"github.com/opencouncil/councild/internal/service"
)

// runAdmin dispatches admin subcommands for the observation lifecycle.
// These mirror the HTTP endpoints so operators can manage observations
// without the dashboard.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "list-observations":
		return runAdminListObservations(args[1:])
	case "promote":
		return runAdminPromote(args[1:])
	case "deprecate":
		return runAdminDeprecate(args[1:])
	case "stale":
		return runAdminStale(args[1:])
	case "bootstrap":
		return runAdminBootstrap(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: councild admin <command> [options]

Commands:
  list-observations   List observations, optionally filtered by agent/status
  promote             Promote a draft observation to active
  deprecate           Deprecate an observation
  stale               List active observations past the staleness cutoff
  bootstrap           Seed an agent's observations from historical outcomes
  help                Show this help message

Examples:
  councild admin list-observations --agent technical --status draft
  councild admin promote --id 4f6b... --reviewer alex
  councild admin deprecate --id 4f6b...
  councild admin stale
  councild admin bootstrap --agent budget --file history.json
`)
}

// adminDeps carries the shared dependencies of the admin commands.
type adminDeps struct {
	cfg   *config.Config
	store database.Store
}

func loadAdminDeps() (*adminDeps, func(), error) {
	cfg, _, err := config.LoadWithCLI(config.CLIFlags{})
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	deps := &adminDeps{cfg: cfg, store: postgres.NewStore(pool)}
	return deps, pool.Close, nil
}

func runAdminListObservations(args []string) error {
	fs := flag.NewFlagSet("list-observations", flag.ContinueOnError)
	agentID := fs.String("agent", "", "filter by agent id")
	status := fs.String("status", "", "filter by status (draft|active|deprecated)")
	limit := fs.Int("limit", 100, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewObservationService(deps.store, deps.cfg.Learning)
	obs, err := svc.List(context.Background(), database.ObservationFilter{
		AgentID: *agentID,
		Status:  observation.Status(*status),
		Limit:   *limit,
	})
	if err != nil {
		return fmt.Errorf("list observations: %w", err)
	}

	if len(obs) == 0 {
		fmt.Println("No observations found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAGENT\tSTATUS\tUSED\tEVIDENCE\tPATTERN")
	for i := range obs {
		o := &obs[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			o.ID, o.AgentID, o.Status, o.TimesUsed, len(o.Evidence), o.Pattern)
	}
	return w.Flush()
}

func runAdminPromote(args []string) error {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	id := fs.String("id", "", "observation id (required)")
	reviewer := fs.String("reviewer", "", "reviewer name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if *reviewer == "" {
		return fmt.Errorf("--reviewer is required")
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewObservationService(deps.store, deps.cfg.Learning)
	o, err := svc.Promote(context.Background(), *id, *reviewer)
	if err != nil {
		return fmt.Errorf("promote observation: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Observation %s promoted by %s\n", o.ID, *reviewer)
	return nil
}

func runAdminDeprecate(args []string) error {
	fs := flag.NewFlagSet("deprecate", flag.ContinueOnError)
	id := fs.String("id", "", "observation id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewObservationService(deps.store, deps.cfg.Learning)
	o, err := svc.Deprecate(context.Background(), *id)
	if err != nil {
		return fmt.Errorf("deprecate observation: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Observation %s deprecated\n", o.ID)
	return nil
}

func runAdminStale(args []string) error {
	fs := flag.NewFlagSet("stale", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.NewObservationService(deps.store, deps.cfg.Learning)
	ids, err := svc.FlagStale(context.Background())
	if err != nil {
		return fmt.Errorf("flag stale observations: %w", err)
	}

	if len(ids) == 0 {
		fmt.Println("No stale observations.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runAdminBootstrap(args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	agentID := fs.String("agent", "", "agent id to bootstrap (required)")
	file := fs.String("file", "", "JSON file with historical applications (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *agentID == "" {
		return fmt.Errorf("--agent is required")
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read history file: %w", err)
	}
	var history []service.HistoricalApplication
	if err := json.Unmarshal(data, &history); err != nil {
		return fmt.Errorf("parse history file: %w", err)
	}

	deps, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	llm := litellm.NewClient(deps.cfg.Gateway)
	svc := service.NewLearningService(llm, deps.store, nil, deps.cfg.Agents, deps.cfg.Learning, nil)

	created, err := svc.Bootstrap(context.Background(), *agentID, history)
	if err != nil {
		return fmt.Errorf("bootstrap agent: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Created %d draft observations for %s\n", len(created), *agentID)
	for _, o := range created {
		fmt.Println(o.ID)
	}
	return nil
}
