package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"sbr_monitor/config"
	"sbr_monitor/database"
	"sbr_monitor/logger"
	"sbr_monitor/models"
	"sbr_monitor/reconcile"
	"sbr_monitor/remote"
	"sbr_monitor/synccontrol"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	command := os.Args[1]
	args := os.Args[2:]

	// Initialize logging only for commands that need it
	if needsLogging(command) {
		cfg := loadConfig()
		if err := logger.Init(cfg.Logging); err != nil {
			log.Fatalf("Failed to initialize logging: %v", err)
		}
		defer func() {
			if err := logger.Close(); err != nil {
				log.Fatalf("Failed to close logging: %v", err)
			}
		}()
		logger.LogCommand(os.Args[0], os.Args)
	}

	switch command {
	case "connect":
		connectCommand()
	case "migrate":
		migrateCommand()
	case "migrate:status":
		migrationStatusCommand()
	case "db:info":
		dbInfoCommand()
	case "add":
		if len(args) < 1 {
			usageError("sampling point required", "add <point> [ph=7.1] [nh4=0.8] [a=1.000 b=1.018] [at=\"2025-03-01 08:00\"] [note=...]")
			return
		}
		addCommand(args[0], args[1:])
	case "list":
		listCommand(args)
	case "delete":
		if len(args) < 1 {
			usageError("measurement id required", "delete <id>")
			return
		}
		deleteCommand(args[0])
	case "summary":
		summaryCommand()
	case "push":
		pushCommand()
	case "pull":
		pullCommand(args)
	case "sync":
		fullSyncCommand()
	case "watch":
		watchCommand()
	case "id:show":
		idShowCommand()
	case "id:set":
		if len(args) < 1 {
			usageError("sync identifier required", "id:set <sync_id>")
			return
		}
		idSetCommand(args[0])
	case "id:generate":
		idGenerateCommand()
	case "id:clear":
		idClearCommand()
	case "id:qr":
		if len(args) < 1 {
			usageError("output file required", "id:qr <file.png>")
			return
		}
		idQRCommand(args[0])
	case "autosync":
		if len(args) < 1 || (args[0] != "on" && args[0] != "off") {
			usageError("on or off required", "autosync on|off")
			return
		}
		autoSyncCommand(args[0] == "on")
	case "export":
		exportCommand(argOr(args, 0, "-"))
	case "export:code":
		exportCodeCommand()
	case "export:csv":
		exportCSVCommand(argOr(args, 0, "-"))
	case "import":
		if len(args) < 1 {
			usageError("file path (or - for stdin) required", "import <file|->")
			return
		}
		importCommand(args[0])
	case "scan":
		if len(args) < 1 {
			usageError("directory path required", "scan <directory_path>")
			return
		}
		scanCommand(args[0])
	case "generate":
		if len(args) < 1 {
			usageError("output directory required", "generate <output_directory> [days] [seed]")
			return
		}
		generateCommand(args)
	case "serve":
		serveCommand()
	case "help":
		showHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showHelp()
	}
}

// needsLogging determines which commands need logging
func needsLogging(command string) bool {
	loggingCommands := map[string]bool{
		"connect":        true,
		"migrate":        true,
		"migrate:status": true,
		"add":            true,
		"delete":         true,
		"push":           true,
		"pull":           true,
		"sync":           true,
		"watch":          true,
		"id:set":         true,
		"id:generate":    true,
		"id:clear":       true,
		"autosync":       true,
		"import":         true,
		"scan":           true,
		"generate":       true,
		"serve":          true,
	}
	return loggingCommands[command]
}

func showHelp() {
	fmt.Println("SBR Monitor - wastewater measurement log with multi-device sync")
	fmt.Println("")
	fmt.Println("Usage: sbr_monitor <command> [arguments]")
	fmt.Println("")
	fmt.Println("Database:")
	fmt.Println("  connect                  Test database connection")
	fmt.Println("  migrate                  Run pending migrations")
	fmt.Println("  migrate:status           Show migration status")
	fmt.Println("  db:info                  Show database information")
	fmt.Println("")
	fmt.Println("Measurements:")
	fmt.Println("  add <point> [k=v ...]    Record a measurement (ph, chzt, tn, tp, nh4, no3, caco3,")
	fmt.Println("                           mlss, temp, a/b scale readings, at, note)")
	fmt.Println("  list [--alerts] [--point=<p>] [--limit=<n>]")
	fmt.Println("                           List measurements, newest first")
	fmt.Println("  delete <id>              Delete a measurement")
	fmt.Println("  summary                  Show dashboard counters")
	fmt.Println("")
	fmt.Println("Sync:")
	fmt.Println("  push                     Overwrite the remote document with local history")
	fmt.Println("  pull [--replace] [--yes] Merge remote history (or replace local, after confirmation)")
	fmt.Println("  sync                     Pull, merge and push back")
	fmt.Println("  watch                    Run interval sync until interrupted")
	fmt.Println("  id:show | id:set <id> | id:generate | id:clear | id:qr <file.png>")
	fmt.Println("  autosync on|off          Toggle sync after each change and on interval")
	fmt.Println("")
	fmt.Println("Transfer:")
	fmt.Println("  export [file|-]          Export history as JSON")
	fmt.Println("  export:code              Print a share code of the history")
	fmt.Println("  export:csv [file|-]      Export history as CSV")
	fmt.Println("  import <file|->          Merge a JSON export or share code")
	fmt.Println("  scan <directory>         Merge every CSV file in a directory (non-recursive)")
	fmt.Println("  generate <dir> [days] [seed]")
	fmt.Println("                           Write sample CSV files")
	fmt.Println("")
	fmt.Println("  serve                    Start the local HTTP API")
	fmt.Println("  help                     Show this help message")
	fmt.Println("")
	fmt.Println("Sampling points:")
	for _, p := range models.SamplingPoints {
		fmt.Printf("  %s\n", p)
	}
	fmt.Println("")
	fmt.Println("Configuration:")
	fmt.Println("  Edit config.yaml (or set SBR_CONFIG); SBR_* environment variables and .env override it")
}

func usageError(msg, usage string) {
	fmt.Printf("Error: %s\n", msg)
	fmt.Printf("Usage: sbr_monitor %s\n", usage)
}

func argOr(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}
	return fallback
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func connectDatabase() (*config.Config, error) {
	cfg := loadConfig()

	if _, err := database.Open(cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, nil
}

// app bundles what the measurement and sync commands need
type app struct {
	cfg        *config.Config
	store      *database.Store
	engine     *reconcile.Engine
	ctl        *synccontrol.Controller
	thresholds models.Thresholds
}

func openApp(ctx context.Context) *app {
	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v\n", err)
	}

	client, err := remote.New(ctx, cfg.Sync)
	if err != nil {
		logger.Fatalf("Failed to set up sync provider: %v\n", err)
	}

	store := database.NewStore(database.GetDB())
	engine := reconcile.NewEngine(store, client)
	return &app{
		cfg:    cfg,
		store:  store,
		engine: engine,
		ctl:    synccontrol.New(engine, cfg.Sync, nil),
		thresholds: models.Thresholds{
			PHMin:  cfg.Thresholds.PHMin,
			PHMax:  cfg.Thresholds.PHMax,
			NH4Max: cfg.Thresholds.NH4Max,
		},
	}
}

func connectCommand() {
	logger.Println("Testing database connection...")

	cfg, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Connection failed: %v\n", err)
	}

	logger.Printf("✓ Successfully connected to %s database\n", cfg.Database.Driver)

	info := database.GetDatabaseInfo(cfg)
	infoJSON, _ := json.MarshalIndent(info, "", "  ")
	logger.Printf("Connection info: %s\n", infoJSON)
}

func migrateCommand() {
	logger.Println("Running database migrations...")

	cfg := loadConfig()
	if _, err := database.Connect(cfg); err != nil {
		logger.Fatalf("Failed to connect to database: %v\n", err)
	}

	runner := database.NewMigrationRunner(database.GetDB(), cfg)
	if err := runner.RunMigrations(); err != nil {
		logger.Fatalf("Migration failed: %v\n", err)
	}
}

func migrationStatusCommand() {
	logger.Println("Checking migration status...")

	cfg := loadConfig()
	if _, err := database.Connect(cfg); err != nil {
		logger.Fatalf("Failed to connect to database: %v\n", err)
	}

	runner := database.NewMigrationRunner(database.GetDB(), cfg)

	migrations, err := runner.GetMigrationStatus()
	if err != nil {
		logger.Fatalf("Failed to get migration status: %v\n", err)
	}

	if len(migrations) == 0 {
		logger.Println("No migrations found")
		return
	}

	logger.Printf("%-20s %-40s %s\n", "Version", "Name", "Status")
	logger.Println("-------------------------------------------------------------------")

	for _, migration := range migrations {
		status := "Pending"
		if migration.Applied {
			status = "Applied"
		}
		logger.Printf("%-20s %-40s %s\n", migration.Version, migration.Name, status)
	}
}

func dbInfoCommand() {
	fmt.Println("Database Information:")
	fmt.Println(strings.Repeat("=", 50))

	cfg, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	info := database.GetDatabaseInfo(cfg)

	fmt.Printf("Database Type:     %v\n", info["driver"])
	fmt.Printf("Connection Status: %v\n", getConnectionStatusText(info["connected"]))

	switch cfg.Database.Driver {
	case "mysql", "postgres":
		fmt.Printf("Host:              %v\n", info["host"])
		fmt.Printf("Port:              %v\n", info["port"])
		fmt.Printf("Database:          %v\n", info["database"])
	case "sqlite":
		fmt.Printf("File Path:         %v\n", info["path"])
	}

	if info["connected"] == true {
		fmt.Println("\nConnection Pool:")
		fmt.Printf("  Max Connections: %v\n", info["max_open_connections"])
		fmt.Printf("  Open Connections:%v\n", info["open_connections"])
		fmt.Printf("  In Use:          %v\n", info["in_use"])
		fmt.Printf("  Idle:            %v\n", info["idle"])

		fmt.Println("\nData Information:")
		fmt.Printf("  Measurements:    %v\n", info["measurements"])
		fmt.Printf("  With Alerts:     %v\n", info["measurements_with_alerts"])
		if earliest, ok := info["earliest"]; ok {
			fmt.Printf("  Date Range:      %v to %v\n", earliest, info["latest"])
		}
	} else {
		fmt.Println("\nConnection failed - unable to retrieve detailed information")
	}

	fmt.Println(strings.Repeat("=", 50))
}

func getConnectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "✓ Connected"
	}
	return "✗ Disconnected"
}
