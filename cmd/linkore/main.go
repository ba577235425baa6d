// linkore - Minecraft/Discord account linking service
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/openredstone/linkore/internal/api"
	"github.com/openredstone/linkore/internal/auth"
	"github.com/openredstone/linkore/internal/config"
	"github.com/openredstone/linkore/internal/discord"
	"github.com/openredstone/linkore/internal/groups"
	"github.com/openredstone/linkore/internal/linking"
	"github.com/openredstone/linkore/internal/storage"
	"github.com/openredstone/linkore/internal/token"
)

var version = "dev"

const defaultConfigPath = "/etc/linkore/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "users":
		cmdUsers(os.Args[2:])
	case "unlink":
		cmdUnlink(os.Args[2:])
	case "account":
		cmdAccount(os.Args[2:])
	case "version":
		fmt.Printf("linkore %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: linkore <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init                        Write a default config file")
	fmt.Println("  serve                       Start the linking service")
	fmt.Println("  users                       List linked accounts")
	fmt.Println("  unlink <uuid|discord-id>    Remove a link from the database")
	fmt.Println("  account add [--admin] <username>")
	fmt.Println("                              Add an API account (prompts for password)")
	fmt.Println("  account remove <username>   Remove an API account")
	fmt.Println("  account list                List API accounts")
	fmt.Println("  account passwd <username>   Reset an API account's password")
	fmt.Println("  version                     Show version")
	fmt.Println("  help                        Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/linkore/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  sudo linkore init")
	fmt.Println("  linkore serve --config /etc/linkore/config.yml")
	fmt.Println("  linkore account add --admin myuser")
	fmt.Println("  linkore unlink 069a79f4-44e9-4726-a5be-fca90e38aaf5")
}

// cmdServe starts the linking service
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Linkore %s starting...", version)

	// Initialize storage
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	// Optionally run an in-process NATS server
	natsURL := cfg.NATS.URL
	var embedded *natsserver.Server
	if cfg.NATS.Embedded {
		embedded, err = natsserver.NewServer(&natsserver.Options{
			Host: "127.0.0.1",
			Port: cfg.NATS.EmbeddedPort,
		})
		if err != nil {
			log.Fatalf("Failed to create embedded NATS server: %v", err)
		}
		go embedded.Start()
		if !embedded.ReadyForConnections(10 * time.Second) {
			log.Fatalf("Embedded NATS server did not come up")
		}
		natsURL = embedded.ClientURL()
		log.Printf("Embedded NATS server listening on %s", natsURL)
	}

	// Connect to the permission bridge
	nc, err := nats.Connect(natsURL,
		nats.Name("linkore"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Fatalf("Failed to connect to NATS at %s: %v", natsURL, err)
	}
	defer nc.Close()
	log.Printf("Connected to NATS at %s", nc.ConnectedUrl())

	// Create the Discord bot; it doubles as the guild the reconciler mutates
	bot, err := discord.New(cfg.Discord.BotToken, cfg.Discord.GuildID, cfg.Discord.LogChannelID, cfg.Discord.PlayingMessage)
	if err != nil {
		log.Fatalf("Failed to create Discord bot: %v", err)
	}

	// Wire the linking coordinator
	perms := groups.NewClient(nc)
	tokens := token.NewStore(cfg.Linking.TokenLifespan.Std())
	syncer := linking.NewSyncer(bot, perms, cfg.Discord.Track)
	svc := linking.NewService(store, tokens, syncer)
	svc.Announce = bot.Announce
	bot.UseLinking(svc)

	if err := bot.Start(); err != nil {
		log.Fatalf("Failed to start Discord bot: %v", err)
	}

	// Debounced permission-change listener
	listener := linking.NewListener(svc, cfg.Linking.Debounce.Std())
	sub, err := perms.SubscribeChanges(listener.HandleChange)
	if err != nil {
		log.Fatalf("Failed to subscribe to permission changes: %v", err)
	}
	log.Printf("Listening for permission changes on %s", groups.SubjectChanged)

	// Auth service for the admin API
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration.Std())
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}
	if cfg.Server.PluginToken == "" {
		log.Printf("Warning: No plugin token configured. Plugin endpoints are disabled.")
	}

	// HTTP router with the WebSocket audit stream
	router := api.NewRouter(store, svc, authService, cfg.Server.PluginToken)
	svc.OnEvent = router.BroadcastEvent
	router.StartWebSocketHub()

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	// Sequential shutdown
	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping permission listener...")
	sub.Unsubscribe()
	listener.Stop()

	log.Println("Stopping Discord bot...")
	bot.Stop()

	if embedded != nil {
		log.Println("Stopping embedded NATS server...")
		embedded.Shutdown()
	}

	log.Println("Shutdown complete")
}

const configTemplate = `# linkore configuration
server:
  listen_addr: 127.0.0.1
  http_port: 8095
  # Shared secret the proxy-side plugin sends as a bearer token.
  plugin_token: %s

database:
  path: /var/lib/linkore/linkore.db

discord:
  bot_token: ""
  guild_id: ""
  # Channel for link/unlink notices. Leave empty to disable.
  log_channel_id: ""
  playing_message: "with linked accounts"
  # Permission track whose groups map onto Discord roles.
  track: ranks

nats:
  url: nats://127.0.0.1:4222
  # Run an in-process NATS server instead of connecting out.
  embedded: false
  embedded_port: 4222

auth:
  jwt_secret: %s
  token_duration: 24h

linking:
  token_lifespan: 30m
  debounce: 500ms
`

// cmdInit writes a default config file with generated secrets
func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Printf("Linkore is already initialized (%s exists).\n", *configPath)
		fmt.Println("To re-initialize, remove the config file first.")
		return
	}

	if err := os.MkdirAll(filepath.Dir(*configPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", filepath.Dir(*configPath), err)
		os.Exit(1)
	}
	if err := os.MkdirAll("/var/lib/linkore", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating /var/lib/linkore: %v\n", err)
		os.Exit(1)
	}

	content := fmt.Sprintf(configTemplate, randomSecret(), randomSecret())
	if err := os.WriteFile(*configPath, []byte(content), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config: %s\n", *configPath)

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s with your bot token and guild id\n", *configPath)
	fmt.Println("  2. Add an API account: linkore account add --admin myuser")
	fmt.Println("  3. Start linkore: linkore serve")
}

func randomSecret() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}
	return hex.EncodeToString(buf)
}

// openStore loads the config and opens the database for CLI commands
func openStore(args []string) (*storage.Store, []string) {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	dbPath := "/var/lib/linkore/linkore.db"
	if cfg, err := config.Load(*configPath); err == nil {
		dbPath = cfg.Database.Path
	} else {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
	}

	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store, fs.Args()
}

// cmdUsers lists linked accounts
func cmdUsers(args []string) {
	store, _ := openStore(args)
	defer store.Close()

	users, err := store.ListUsers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(users) == 0 {
		fmt.Println("No linked accounts")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUUID\tDISCORD_ID")
	fmt.Fprintln(w, "----\t----\t----------")
	for _, user := range users {
		fmt.Fprintf(w, "%s\t%s\t%d\n", user.Name, user.UUID, user.DiscordID)
	}
	w.Flush()
}

// cmdUnlink removes a link directly from the database. Roles and nicknames
// are not touched; use the API or /forcesync for that.
func cmdUnlink(args []string) {
	store, remaining := openStore(args)
	defer store.Close()

	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: linkore unlink <uuid|discord-id>\n")
		os.Exit(1)
	}

	ctx := context.Background()
	key := remaining[0]

	var discordID int64
	if id, err := uuid.Parse(key); err == nil {
		user, err := store.GetUserByUUID(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: no link for uuid %s\n", key)
			os.Exit(1)
		}
		discordID = user.DiscordID
	} else if parsed, err := strconv.ParseInt(key, 10, 64); err == nil {
		discordID = parsed
	} else {
		fmt.Fprintf(os.Stderr, "Error: %q is neither a uuid nor a discord id\n", key)
		os.Exit(1)
	}

	user, err := store.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: no link for discord id %d\n", discordID)
		os.Exit(1)
	}
	if err := store.UnlinkUser(ctx, discordID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Unlinked %s\n", user)
}

// cmdAccount dispatches account subcommands
func cmdAccount(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: account subcommand required: add, remove, list, passwd\n")
		os.Exit(1)
	}

	subCmd := args[0]
	store, remaining := openStore(args[1:])
	defer store.Close()

	ctx := context.Background()

	var err error
	switch subCmd {
	case "add":
		err = cmdAccountAdd(ctx, store, remaining)
	case "remove":
		err = cmdAccountRemove(ctx, store, remaining)
	case "list":
		err = cmdAccountList(ctx, store)
	case "passwd":
		err = cmdAccountPasswd(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown account command: %s (use: add, remove, list, passwd)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdAccountAdd(ctx context.Context, store *storage.Store, args []string) error {
	fs := flag.NewFlagSet("account add", flag.ExitOnError)
	isAdmin := fs.Bool("admin", false, "create as admin account")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		return fmt.Errorf("usage: linkore account add [--admin] <username>")
	}
	username := remaining[0]

	if _, err := store.GetAccountByUsername(ctx, username); err == nil {
		return fmt.Errorf("account '%s' already exists", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.CreateAccount(ctx, username, hash, *isAdmin); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	roleStr := "user"
	if *isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("Account '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdAccountRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: linkore account remove <username>")
	}
	username := args[0]

	if err := store.DeleteAccount(ctx, username); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}

	fmt.Printf("Account '%s' removed\n", username)
	return nil
}

func cmdAccountList(ctx context.Context, store *storage.Store) error {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No accounts configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t----\t----------")
	for _, account := range accounts {
		role := "user"
		if account.IsAdmin {
			role = "admin"
		}
		lastLogin := "never"
		if account.LastLogin != nil {
			lastLogin = account.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", account.Username, role, lastLogin)
	}
	return w.Flush()
}

func cmdAccountPasswd(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: linkore account passwd <username>")
	}
	username := args[0]

	account, err := store.GetAccountByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("account not found: %s", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.UpdateAccountPassword(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Printf("Password updated for '%s'\n", username)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(password), nil
}
