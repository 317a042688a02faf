package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/profile"
	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/store"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "profile" {
		cmdProfile(profileName, args[1:])
		return
	}

	p, err := config.LoadProfile(profile.SettingsPath(profileName))
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	c := rest.NewClient(p.Server.APIURL, p.AccessToken, p.UserID, p.Server.RequestTimeout.Duration, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "ping":
		cmdPing(ctx, c, p)
	case "contacts":
		cmdContacts(ctx, c, *jsonFlag)
	case "history":
		if len(args) < 2 {
			fail("usage: parleyctl history <peer> [before]")
		}
		before := ""
		if len(args) > 2 {
			before = args[2]
		}
		cmdHistory(ctx, c, p, args[1], before, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fail("usage: parleyctl search <query>")
		}
		cmdSearch(ctx, c, strings.Join(args[1:], " "), *jsonFlag)
	case "wallpaper":
		cmdWallpaper(ctx, c, args[1:], *jsonFlag)
	case "upload":
		if len(args) < 2 {
			fail("usage: parleyctl upload <path>")
		}
		cmdUpload(ctx, c, args[1], *jsonFlag)
	case "download":
		if len(args) < 3 {
			fail("usage: parleyctl download <url> <path>")
		}
		cmdDownload(ctx, c, args[1], args[2])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: parleyctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  ping                          Check the server and credentials")
	fmt.Fprintln(os.Stderr, "  contacts                      List contacts")
	fmt.Fprintln(os.Stderr, "  history <peer> [before]       Show a page of a conversation")
	fmt.Fprintln(os.Stderr, "  search <query>                Search users")
	fmt.Fprintln(os.Stderr, "  wallpaper list                List wallpapers")
	fmt.Fprintln(os.Stderr, "  wallpaper get <peer>          Show a conversation's wallpaper")
	fmt.Fprintln(os.Stderr, "  wallpaper set <peer> <id>     Set a conversation's wallpaper")
	fmt.Fprintln(os.Stderr, "  upload <path>                 Upload a file")
	fmt.Fprintln(os.Stderr, "  download <url> <path>         Download media to a file")
	fmt.Fprintln(os.Stderr, "  profile init [flags]          Write a profile settings file")
	fmt.Fprintln(os.Stderr, "  profile show                  Print the resolved profile")
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdPing(ctx context.Context, c *rest.Client, p *config.Profile) {
	start := time.Now()
	check(c.Ping(ctx))
	fmt.Printf("OK %s as %s (%s)\n", p.Server.APIURL, p.UserID, time.Since(start).Round(time.Millisecond))
}

func cmdContacts(ctx context.Context, c *rest.Client, jsonOut bool) {
	contacts, err := c.Contacts(ctx)
	check(err)
	if jsonOut {
		outputJSON(contacts)
		return
	}
	for _, ct := range contacts {
		online := " "
		if ct.IsOnline {
			online = "●"
		}
		fmt.Printf("%s %-24s %s\n", online, ct.ID, ct.DisplayName())
	}
}

func cmdHistory(ctx context.Context, c *rest.Client, p *config.Profile, peer, before string, jsonOut bool) {
	page, err := c.History(ctx, peer, before, p.Chat.HistoryPageSize)
	check(err)
	if jsonOut {
		outputJSON(page)
		return
	}
	for _, m := range page.Messages {
		who := m.SenderID
		if who == p.UserID {
			who = "you"
		}
		fmt.Printf("%s  %-12s %s\n", m.EffectiveTime().Local().Format("2006-01-02 15:04"), who, m.Preview())
	}
	if page.HasMore {
		next := page.NextCursor
		if next == "" && len(page.Messages) > 0 {
			next = page.Messages[0].ID
		}
		fmt.Printf("-- more: parleyctl history %s %s\n", peer, next)
	}
}

func cmdSearch(ctx context.Context, c *rest.Client, query string, jsonOut bool) {
	users, err := c.SearchUsers(ctx, query, 20)
	check(err)
	if jsonOut {
		outputJSON(users)
		return
	}
	for _, u := range users {
		fmt.Printf("%-24s %s\n", u.ID, u.DisplayName())
	}
}

func cmdWallpaper(ctx context.Context, c *rest.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		fail("usage: parleyctl wallpaper <list|get|set>")
	}
	switch args[0] {
	case "list":
		list, err := c.Wallpapers(ctx)
		check(err)
		if jsonOut {
			outputJSON(list)
			return
		}
		for _, w := range list {
			fmt.Printf("%-12s %-16s %s\n", w.ID, w.Name, w.URL)
		}
	case "get":
		if len(args) < 2 {
			fail("usage: parleyctl wallpaper get <peer>")
		}
		u, err := c.Wallpaper(ctx, store.ConversationID(c.Self(), args[1]))
		check(err)
		if u == "" {
			u = "(none)"
		}
		fmt.Println(u)
	case "set":
		if len(args) < 3 {
			fail("usage: parleyctl wallpaper set <peer> <id>")
		}
		check(c.SetWallpaper(ctx, store.ConversationID(c.Self(), args[1]), args[2]))
		fmt.Println("OK")
	default:
		fmt.Fprintf(os.Stderr, "unknown wallpaper subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdUpload(ctx context.Context, c *rest.Client, path string, jsonOut bool) {
	up, err := c.UploadFile(ctx, path)
	check(err)
	if jsonOut {
		outputJSON(up)
		return
	}
	fmt.Printf("%s (%s, %d bytes)\n", up.URL, up.MimeType, up.Size)
}

func cmdDownload(ctx context.Context, c *rest.Client, url, path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	check(err)
	n, err := c.Download(ctx, url, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	check(err)
	fmt.Printf("%s (%d bytes)\n", path, n)
}

func cmdProfile(name string, args []string) {
	if len(args) == 0 {
		fail("usage: parleyctl profile <init|show>")
	}
	path := profile.SettingsPath(name)
	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("profile init", flag.ExitOnError)
		user := fs.String("user", "", "your user id")
		token := fs.String("token", "", "access token")
		api := fs.String("api", "", "API base URL")
		force := fs.Bool("force", false, "overwrite an existing profile")
		_ = fs.Parse(args[1:])

		if _, err := os.Stat(path); err == nil && !*force {
			fail("profile exists: " + path + " (use --force to overwrite)")
		}
		p := config.Defaults()
		p.UserID = *user
		p.AccessToken = *token
		if *api != "" {
			p.Server.APIURL = *api
		}
		check(profile.EnsureDir(name))
		check(config.SaveProfile(path, &p))
		fmt.Printf("wrote %s\n", path)
		if err := p.Validate(); err != nil {
			fmt.Printf("note: %v\n", err)
		}
	case "show":
		p, err := config.LoadProfile(path)
		check(err)
		if p.AccessToken != "" {
			p.AccessToken = "********"
		}
		outputJSON(p)
	default:
		fmt.Fprintf(os.Stderr, "unknown profile subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
