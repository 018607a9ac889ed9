package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"postingapp/app/config"
	"postingapp/app/logger"
	"postingapp/app/models"
	"postingapp/app/repositories"
	"postingapp/app/services"
)

// stdin answers confirmation prompts. Tests replace it.
var stdin io.Reader = os.Stdin

// Usage lists the commands handled by HandleCommand.
const Usage = `  serve                          Run the web application
  db init                        Create the database (runs migrations for SQL drivers)
  db clean                       Remove the database
  db status                      Show the store driver and the latest post
  db backup [file]               Write a badger backup (default data/backups/backup_<unix>.db)
  db restore <file>              Replace the database with a badger backup
  user add <username> <password> Create a user account

Options:
  --config <path>                YAML configuration file`

// HandleCommand runs serve, db and user subcommands and returns an exit code.
func HandleCommand(args []string) int {
	args, configPath, err := extractConfigFlag(args)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if len(args) < 1 {
		fmt.Println("Error: command required")
		return 1
	}

	cmd := args[0]
	switch cmd {
	case "serve", "db", "user":
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	switch cmd {
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := RunAppServer(ctx, cfg, log); err != nil {
			log.Error("server failed", zap.Error(err))
			return 1
		}
		return 0
	case "db":
		return handleDBCommand(args[1:], cfg, log)
	default:
		return handleUserCommand(args[1:], cfg, log)
	}
}

// extractConfigFlag removes "--config <path>" from args wherever it appears.
func extractConfigFlag(args []string) ([]string, string, error) {
	rest := make([]string, 0, len(args))
	var path string
	for i := 0; i < len(args); i++ {
		if args[i] != "--config" {
			rest = append(rest, args[i])
			continue
		}
		if i+1 >= len(args) {
			return nil, "", errors.New("--config requires a path")
		}
		path = args[i+1]
		i++
	}
	return rest, path, nil
}

func handleDBCommand(args []string, cfg config.Config, log *zap.Logger) int {
	if len(args) < 1 {
		fmt.Println("Error: db command required (init, clean, status, backup, restore)")
		return 1
	}

	switch args[0] {
	case "init":
		return initDb(cfg.Store, log)
	case "clean":
		return clean(cfg.Store)
	case "status":
		return status(cfg.Store, log)
	case "backup":
		file := filepath.Join("data", "backups", fmt.Sprintf("backup_%d.db", time.Now().Unix()))
		if len(args) > 1 {
			file = args[1]
		}
		return backup(cfg.Store, file, log)
	case "restore":
		if len(args) < 2 {
			fmt.Println("Error: backup file path required for restore")
			return 1
		}
		return restore(cfg.Store, args[1], log)
	default:
		fmt.Printf("Unknown db command: %s\n", args[0])
		return 1
	}
}

func handleUserCommand(args []string, cfg config.Config, log *zap.Logger) int {
	if len(args) < 1 || args[0] != "add" {
		fmt.Println("Error: usage: user add <username> <password>")
		return 1
	}
	if len(args) != 3 {
		fmt.Println("Error: username and password required")
		return 1
	}
	return addUser(cfg.Store, models.Credentials{Username: args[1], Password: args[2]}, log)
}

func confirm(prompt string) bool {
	fmt.Print(prompt + " [y/N] ")
	var response string
	_, _ = fmt.Fscanln(stdin, &response)
	return response == "y" || response == "Y"
}

// withRepositories opens the store for the duration of fn.
func withRepositories(cfg config.StoreConfig, log *zap.Logger, fn func(*repositories.Repositories) error) (err error) {
	repos, err := repositories.Open(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, repos.Close()) }()
	return fn(repos)
}

func requireBadger(cfg config.StoreConfig, command string) bool {
	if cfg.Driver != config.DriverBadger {
		fmt.Printf("Error: %s is only available for the badger driver (configured: %s)\n", command, cfg.Driver)
		return false
	}
	return true
}

// initDb creates a new empty database.
func initDb(cfg config.StoreConfig, log *zap.Logger) int {
	if cfg.Driver == config.DriverBadger {
		if _, err := os.Stat(cfg.Path); err == nil {
			fmt.Println("Database already exists. Use 'db clean' first if you want to reinitialize.")
			return 1
		}
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			fmt.Printf("Failed to create database directory: %v\n", err)
			return 1
		}
	}

	if err := withRepositories(cfg, log, func(*repositories.Repositories) error { return nil }); err != nil {
		fmt.Printf("Failed to initialize database: %v\n", err)
		return 1
	}
	fmt.Println("Database initialized successfully")
	return 0
}

// clean removes the database files of the badger and sqlite drivers.
func clean(cfg config.StoreConfig) int {
	if cfg.Driver == config.DriverPostgres {
		fmt.Println("Error: clean is not available for the postgres driver")
		return 1
	}
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		fmt.Println("Database is already clean (does not exist)")
		return 0
	}

	if !confirm("Are you sure you want to clean the database? This cannot be undone.") {
		fmt.Println("Operation cancelled")
		return 1
	}

	if err := os.RemoveAll(cfg.Path); err != nil {
		fmt.Printf("Failed to clean database: %v\n", err)
		return 1
	}
	fmt.Println("Database cleaned successfully")
	return 0
}

// status reports the configured driver and the most recent post.
func status(cfg config.StoreConfig, log *zap.Logger) int {
	err := withRepositories(cfg, log, func(repos *repositories.Repositories) error {
		fmt.Printf("Driver: %s\n", cfg.Driver)
		post, err := services.NewPostService(repos.Posts).FindLatestPost(context.Background())
		if errors.Is(err, repositories.ErrNotFound) {
			fmt.Println("Latest post: none")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Latest post: #%d %q (updated %s)\n", post.ID, post.Title, post.UpdatedAt.Format(time.RFC3339))
		return nil
	})
	if err != nil {
		fmt.Printf("Failed to read database: %v\n", err)
		return 1
	}
	return 0
}

// backup writes a full badger backup to file.
func backup(cfg config.StoreConfig, file string, log *zap.Logger) int {
	if !requireBadger(cfg, "backup") {
		return 1
	}
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		fmt.Println("No database exists to backup")
		return 1
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		fmt.Printf("Failed to create backup directory: %v\n", err)
		return 1
	}

	err := withRepositories(cfg, log, func(repos *repositories.Repositories) (err error) {
		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		defer func() { err = multierr.Append(err, f.Close()) }()

		_, err = repos.Badger().Backup(f, 0)
		return err
	})
	if err != nil {
		fmt.Printf("Failed to backup database: %v\n", err)
		return 1
	}

	fmt.Printf("Database backed up successfully to %s\n", file)
	return 0
}

// restore replaces the badger database with the contents of backupFile.
func restore(cfg config.StoreConfig, backupFile string, log *zap.Logger) int {
	if !requireBadger(cfg, "restore") {
		return 1
	}

	fi, err := os.Stat(backupFile)
	if os.IsNotExist(err) {
		fmt.Printf("Backup file does not exist: %s\n", backupFile)
		return 1
	}
	if err != nil {
		fmt.Printf("Failed to stat backup file: %v\n", err)
		return 1
	}
	if fi.Size() == 0 {
		fmt.Printf("Backup file is empty: %s\n", backupFile)
		return 1
	}

	if _, err := os.Stat(cfg.Path); err == nil {
		if !confirm("Existing database found. Do you want to replace it?") {
			fmt.Println("Operation cancelled")
			return 1
		}
		if err := os.RemoveAll(cfg.Path); err != nil {
			fmt.Printf("Failed to remove existing database: %v\n", err)
			return 1
		}
	}
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		fmt.Printf("Failed to create database directory: %v\n", err)
		return 1
	}

	err = loadBackup(cfg.Path, backupFile, log)
	if err != nil {
		fmt.Printf("Failed to restore database: %v\n", err)
		return 1
	}

	fmt.Println("Database restored successfully")
	return 0
}

// loadBackup loads into a bare badger handle. Opening the repositories here
// would lease the ID sequences, and releasing them afterwards would overwrite
// the restored sequence keys.
func loadBackup(path, backupFile string, log *zap.Logger) (err error) {
	db, err := repositories.OpenBadger(path, false, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	f, err := os.Open(backupFile)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic occurred during restore: %v", r)
		}
	}()
	return db.Load(f, 4)
}

// addUser registers an account from the command line.
func addUser(cfg config.StoreConfig, creds models.Credentials, log *zap.Logger) int {
	var user *models.User
	err := withRepositories(cfg, log, func(repos *repositories.Repositories) error {
		var err error
		user, err = services.NewUserService(repos.Users).Register(context.Background(), creds)
		return err
	})

	var invalid *services.InvalidCredentialsError
	switch {
	case err == nil:
		fmt.Printf("User %s created (id %d)\n", user.Username, user.ID)
		return 0
	case errors.Is(err, services.ErrUsernameTaken):
		fmt.Printf("Error: username %q is already taken\n", creds.Username)
	case errors.As(err, &invalid):
		for _, field := range []string{"username", "password"} {
			if invalid.Fields.Has(field) {
				fmt.Printf("Error: %s\n", invalid.Fields[field])
			}
		}
	default:
		fmt.Printf("Failed to create user: %v\n", err)
	}
	return 1
}
