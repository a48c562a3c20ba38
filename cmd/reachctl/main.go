// Command reachctl is the operator tool for managing users and mailbox
// accounts of a running sync service. It works directly against the
// database; the sync daemon picks up changes on its next sweep.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/reachbox/reachbox/internal/config"
	"github.com/reachbox/reachbox/internal/database"
	"github.com/reachbox/reachbox/internal/mailbox"
	"github.com/reachbox/reachbox/pkg/models"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.DateTime,
	}))

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open database:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "failed to run migrations:", err)
		os.Exit(1)
	}

	connector := mailbox.NewConnector(mailbox.Config{
		DialTimeout:    cfg.IMAPDialTimeout,
		AuthTimeout:    cfg.IMAPAuthTimeout,
		CommandTimeout: cfg.IMAPCommandTimeout,
	}, logger)

	var cmdErr error
	switch os.Args[1] {
	case "add-user":
		cmdErr = addUser(ctx, db, os.Args[2:])
	case "add-account":
		cmdErr = addAccount(ctx, db, connector, os.Args[2:])
	case "remove-account":
		cmdErr = removeAccount(ctx, db, os.Args[2:])
	case "accounts":
		cmdErr = listAccounts(ctx, db, os.Args[2:])
	case "messages":
		cmdErr = listMessages(ctx, db, os.Args[2:])
	case "runs":
		cmdErr = listRuns(ctx, db, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		fmt.Fprintln(os.Stderr, "error:", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: reachctl <command> [flags]

commands:
  add-user       -name <name> -email <email>
  add-account    -user <email> -mailbox <email> [-provider <tag>] [-host h] [-port n] [-skip-verify]
  remove-account -user <email> -mailbox <email>
  accounts       -user <email>
  messages       -user <email> [-category c] [-query q] [-limit n]
  runs           -user <email> -mailbox <email> [-limit n]`)
}

func addUser(ctx context.Context, db *database.DB, args []string) error {
	fs := flag.NewFlagSet("add-user", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "login email")
	fs.Parse(args)
	if *name == "" || *email == "" {
		return errors.New("-name and -email are required")
	}

	password, err := promptSecret("password: ")
	if err != nil {
		return err
	}

	user, err := db.CreateUser(ctx, *name, *email, password)
	if errors.Is(err, database.ErrAlreadyExists) {
		return fmt.Errorf("user %s already exists", *email)
	}
	if err != nil {
		return err
	}
	fmt.Printf("created user %d (%s)\n", user.ID, user.Email)
	return nil
}

func addAccount(ctx context.Context, db *database.DB, connector *mailbox.Connector, args []string) error {
	fs := flag.NewFlagSet("add-account", flag.ExitOnError)
	userEmail := fs.String("user", "", "owning user's login email")
	mailboxAddr := fs.String("mailbox", "", "mailbox address to sync")
	provider := fs.String("provider", "", "provider tag, e.g. gmail")
	host := fs.String("host", "", "IMAP host override")
	port := fs.Int("port", 0, "IMAP port override")
	skipVerify := fs.Bool("skip-verify", false, "store without testing the credentials")
	fs.Parse(args)
	if *userEmail == "" || *mailboxAddr == "" {
		return errors.New("-user and -mailbox are required")
	}

	user, err := db.GetUserByEmail(ctx, *userEmail)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no such user %s", *userEmail)
	}
	if err != nil {
		return err
	}

	account := &models.Account{
		UserID:   user.ID,
		Email:    *mailboxAddr,
		IMAPHost: *host,
		IMAPPort: *port,
		Provider: *provider,
		IsActive: true,
	}
	if account.IMAPHost == "" {
		key := *provider
		if key == "" {
			key = *mailboxAddr
		}
		h, p, err := mailbox.ResolveHost(key)
		if err != nil {
			return fmt.Errorf("cannot resolve IMAP host (pass -host): %w", err)
		}
		account.IMAPHost = h
		if account.IMAPPort == 0 {
			account.IMAPPort = p
		}
	}

	secret, err := promptSecret("mailbox password: ")
	if err != nil {
		return err
	}
	account.Secret = mailbox.NormalizeSecret(secret)

	if !*skipVerify {
		fmt.Printf("testing %s at %s...\n", account.Email, account.Addr())
		testCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := connector.Test(testCtx, account)
		cancel()
		if err != nil {
			return fmt.Errorf("credential check failed (%s)", err)
		}
	}

	if err := db.CreateAccount(ctx, account); err != nil {
		return err
	}
	fmt.Printf("added account %d (%s via %s)\n", account.ID, account.Email, account.Addr())
	return nil
}

func removeAccount(ctx context.Context, db *database.DB, args []string) error {
	fs := flag.NewFlagSet("remove-account", flag.ExitOnError)
	userEmail := fs.String("user", "", "owning user's login email")
	mailboxAddr := fs.String("mailbox", "", "mailbox address")
	fs.Parse(args)
	if *userEmail == "" || *mailboxAddr == "" {
		return errors.New("-user and -mailbox are required")
	}

	user, account, err := findAccount(ctx, db, *userEmail, *mailboxAddr)
	if err != nil {
		return err
	}
	if err := db.DeactivateAccount(ctx, user.ID, account.ID); err != nil {
		return err
	}
	fmt.Printf("deactivated account %s; synced messages are kept\n", account.Email)
	return nil
}

func listAccounts(ctx context.Context, db *database.DB, args []string) error {
	fs := flag.NewFlagSet("accounts", flag.ExitOnError)
	userEmail := fs.String("user", "", "owning user's login email")
	fs.Parse(args)
	if *userEmail == "" {
		return errors.New("-user is required")
	}

	user, err := db.GetUserByEmail(ctx, *userEmail)
	if err != nil {
		return err
	}
	accounts, err := db.ListActiveAccounts(ctx, user.ID)
	if err != nil {
		return err
	}
	counts, err := db.CountByCategory(ctx, user.ID)
	if err != nil {
		return err
	}

	for _, a := range accounts {
		status := "ok"
		if a.AuthFailed {
			status = "auth failed"
		}
		fmt.Printf("%-6d %-30s %-30s %s\n", a.ID, a.Email, a.Addr(), status)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Printf("%d messages synced", total)
	for category, n := range counts {
		fmt.Printf("  %s=%d", category, n)
	}
	fmt.Println()
	return nil
}

func listMessages(ctx context.Context, db *database.DB, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	userEmail := fs.String("user", "", "owning user's login email")
	category := fs.String("category", "", "filter by category")
	query := fs.String("query", "", "match subject, sender or body")
	limit := fs.Int("limit", 20, "max messages")
	fs.Parse(args)
	if *userEmail == "" {
		return errors.New("-user is required")
	}

	user, err := db.GetUserByEmail(ctx, *userEmail)
	if err != nil {
		return err
	}
	messages, err := db.SearchMessages(ctx, user.ID, database.MessageFilter{
		Query:    *query,
		Category: *category,
		Limit:    *limit,
	})
	if err != nil {
		return err
	}

	for _, m := range messages {
		fmt.Printf("%s  %-10s %-40s %s\n",
			m.ReceivedAt.Format(time.DateTime), m.Category, truncate(m.Sender, 40), truncate(m.Subject, 60))
	}
	return nil
}

func listRuns(ctx context.Context, db *database.DB, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	userEmail := fs.String("user", "", "owning user's login email")
	mailboxAddr := fs.String("mailbox", "", "mailbox address")
	limit := fs.Int("limit", 10, "max runs")
	fs.Parse(args)
	if *userEmail == "" || *mailboxAddr == "" {
		return errors.New("-user and -mailbox are required")
	}

	_, account, err := findAccount(ctx, db, *userEmail, *mailboxAddr)
	if err != nil {
		return err
	}
	runs, err := db.LatestSyncRuns(ctx, account.ID, *limit)
	if err != nil {
		return err
	}

	for _, r := range runs {
		line := fmt.Sprintf("%s  %-8s seen=%d stored=%d failed=%d %dms",
			r.StartedAt.Format(time.DateTime), r.Outcome, r.Seen, r.Stored, r.Failed, r.Duration)
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}
	return nil
}

func findAccount(ctx context.Context, db *database.DB, userEmail, mailboxAddr string) (*models.User, *models.Account, error) {
	user, err := db.GetUserByEmail(ctx, userEmail)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, fmt.Errorf("no such user %s", userEmail)
	}
	if err != nil {
		return nil, nil, err
	}
	accounts, err := db.ListActiveAccounts(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range accounts {
		if a.Email == mailboxAddr {
			return user, a, nil
		}
	}
	return nil, nil, fmt.Errorf("user %s has no active account %s", userEmail, mailboxAddr)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if len(secret) == 0 {
		return "", errors.New("empty secret")
	}
	return string(secret), nil
}
