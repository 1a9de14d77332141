// Command modqueue is the moderator's terminal client for the highlights queue.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/auth"
	"github.com/tommygebru/vitrine-highlights/internal/common"
	"github.com/tommygebru/vitrine-highlights/internal/config"
	"github.com/tommygebru/vitrine-highlights/internal/highlights"
	"github.com/tommygebru/vitrine-highlights/internal/moderation"
	"github.com/tommygebru/vitrine-highlights/internal/playback"
	"github.com/tommygebru/vitrine-highlights/pkg/logger"
)

const usage = `Usage: modqueue <command> [args]

Commands:
  pending                  list highlights awaiting review
  approved                 list approved highlights
  admin [search]           list admin-authored highlights
  stats                    show counts per status
  approve <id>             approve a pending highlight
  reject <id> <reason>     reject a pending highlight
  deactivate <id>          take an admin highlight offline
  reactivate <id>          put an admin highlight back online
  delete <id>              delete a highlight after confirmation
  create -title T -media URL [-link URL -link-text T -ttl 24h]
                           publish an admin highlight
  watch                    poll for new submissions until interrupted
  play [author-id]         play the visible feed headlessly
`

type app struct {
	cfg    *config.ClientConfig
	log    *zap.Logger
	queue  *moderation.Queue
	store  *moderation.HTTPStore
	viewer string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.LoadClient()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewDevelopment(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	a, err := newApp(cfg, log)
	if err != nil {
		log.Fatal("❌ Client setup failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = moderation.WithActor(ctx, a.viewer)

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.ClientConfig, log *zap.Logger) (*app, error) {
	token := cfg.APIToken
	viewer := cfg.ModeratorID
	if token == "" {
		svc := auth.NewService(&auth.Config{JWTSecret: cfg.JWTSecret, AccessTokenExpiry: time.Hour})
		minted, err := svc.GenerateAccessToken(&common.Viewer{ID: cfg.ModeratorID, Role: common.RoleAdmin})
		if err != nil {
			return nil, fmt.Errorf("failed to mint moderator token: %w", err)
		}
		token = minted
	}
	if viewer == "" {
		viewer = "modqueue"
	}

	store, err := moderation.NewHTTPStore(moderation.HTTPStoreConfig{
		BaseURL: cfg.APIBaseURL,
		Token:   token,
		Timeout: cfg.Timeout,
	}, log)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		queue:  moderation.NewQueue(store, cfg.PageSize, log),
		viewer: viewer,
	}, nil
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "pending":
		return a.list(ctx, moderation.PartitionPending, "")
	case "approved":
		return a.list(ctx, moderation.PartitionApproved, "")
	case "admin":
		return a.list(ctx, moderation.PartitionAdmin, strings.Join(args, " "))
	case "stats":
		return a.stats(ctx)
	case "approve":
		id, err := argID(args)
		if err != nil {
			return err
		}
		return a.report(a.queue.Approve(ctx, id))
	case "reject":
		if len(args) < 2 {
			return errors.New("usage: modqueue reject <id> <reason>")
		}
		return a.report(a.queue.Reject(ctx, args[0], strings.Join(args[1:], " ")))
	case "deactivate", "reactivate":
		id, err := argID(args)
		if err != nil {
			return err
		}
		if _, err := a.queue.FetchAdminAuthored(ctx); err != nil {
			return err
		}
		if command == "deactivate" {
			return a.report(a.queue.Deactivate(ctx, id))
		}
		return a.report(a.queue.Reactivate(ctx, id))
	case "delete":
		id, err := argID(args)
		if err != nil {
			return err
		}
		if err := a.queue.Remove(ctx, id, moderation.ConfirmFunc(promptStdin)); err != nil {
			return err
		}
		fmt.Printf("🗑️  Deleted %s\n", id)
		return nil
	case "create":
		return a.create(ctx, args)
	case "watch":
		return a.watch(ctx)
	case "play":
		return a.play(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func argID(args []string) (string, error) {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("a highlight id is required")
	}
	return args[0], nil
}

func (a *app) list(ctx context.Context, p moderation.Partition, search string) error {
	items, err := a.queue.Fetch(ctx, p)
	if err != nil {
		return err
	}
	if search != "" {
		items = a.queue.Search(p, search)
	}
	printItems(items)
	return nil
}

func (a *app) stats(ctx context.Context) error {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
	fmt.Fprintf(w, "approved\t%d\n", stats.Approved)
	fmt.Fprintf(w, "rejected\t%d\n", stats.Rejected)
	fmt.Fprintf(w, "inactive\t%d\n", stats.Inactive)
	fmt.Fprintf(w, "admin\t%d\n", stats.Admin)
	fmt.Fprintf(w, "expired\t%d\n", stats.Expired)
	return w.Flush()
}

func (a *app) report(item *highlights.Item, err error) error {
	if err != nil {
		return err
	}
	if item != nil {
		fmt.Printf("✅ %s is now %s\n", item.ID, item.Status)
	}
	return nil
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	title := fs.String("title", "", "headline")
	description := fs.String("description", "", "optional body text")
	media := fs.String("media", "", "image or video url")
	link := fs.String("link", "", "call-to-action url")
	linkText := fs.String("link-text", "", "call-to-action label")
	ttl := fs.Duration("ttl", highlights.DefaultTTL, "time until the highlight expires")
	if err := fs.Parse(args); err != nil {
		return err
	}

	expires := time.Now().Add(*ttl)
	req := &highlights.SubmitRequest{
		Title:     *title,
		MediaURL:  *media,
		ExpiresAt: &expires,
	}
	if *description != "" {
		req.Description = description
	}
	if *link != "" {
		req.LinkURL = link
	}
	if *linkText != "" {
		req.LinkText = linkText
	}

	item, err := a.queue.Publish(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Published %s (%s), expires %s\n", item.ID, item.Status, item.ExpiresAt.Format(time.RFC822))
	return nil
}

func (a *app) watch(ctx context.Context) error {
	poller := moderation.NewPoller(a.queue, a.cfg.PollInterval, a.log,
		moderation.WithOnNew(func(ids []string) {
			fmt.Printf("🔔 %d new submission(s): %s\n", len(ids), strings.Join(ids, ", "))
		}),
	)
	if err := poller.Start(ctx, a.viewer); err != nil {
		return err
	}
	printItems(a.queue.Items(moderation.PartitionPending))
	fmt.Printf("👀 Watching pending queue every %s, Ctrl+C to stop\n", a.cfg.PollInterval)

	<-ctx.Done()
	if n := len(poller.Acknowledge()); n > 0 {
		fmt.Printf("%d new submission(s) this session\n", n)
	}
	return poller.Stop()
}

func (a *app) play(ctx context.Context, args []string) error {
	items, err := a.queue.FetchApproved(ctx)
	if err != nil {
		return err
	}
	groups := highlights.Group(highlights.FilterVisible(items, time.Now()))
	if len(groups) == 0 {
		fmt.Println("Nothing to play")
		return nil
	}

	group := groups[0]
	if len(args) > 0 {
		group = nil
		for _, g := range groups {
			if g.AuthorID == args[0] {
				group = g
				break
			}
		}
		if group == nil {
			return fmt.Errorf("no visible highlights for author %s", args[0])
		}
	}

	var (
		mu        sync.Mutex
		lastIndex = -1
	)
	done := make(chan struct{})
	player := playback.NewPlayer(
		playback.WithLogger(a.log),
		playback.WithObserver(func(s playback.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if s.State == playback.Closed {
				select {
				case <-done:
				default:
					close(done)
				}
				return
			}
			if s.CurrentIndex != lastIndex {
				lastIndex = s.CurrentIndex
				fmt.Printf("\n▶️  [%d/%d] %s\n", s.CurrentIndex+1, len(s.Items), s.Current.Title)
			}
			fmt.Printf("\r%s %3.0f%%", progressBar(s.Progress), s.Progress)
		}),
	)
	if err := player.Open(group, 0); err != nil {
		return err
	}
	defer player.Close()

	select {
	case <-done:
	case <-ctx.Done():
	}
	fmt.Println()
	return nil
}

func progressBar(progress float64) string {
	const width = 20
	filled := int(progress / 100 * width)
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func printItems(items []*highlights.Item) {
	if len(items) == 0 {
		fmt.Println("No highlights")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAUTHOR\tTITLE\tCREATED\tEXPIRES")
	for _, item := range items {
		author := item.AuthorName
		if item.IsAdmin() {
			author += " (admin)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID,
			item.Status,
			author,
			item.Title,
			item.CreatedAt.Local().Format("Jan 02 15:04"),
			item.ExpiresAt.Local().Format("Jan 02 15:04"),
		)
	}
	w.Flush()
}

func promptStdin(ctx context.Context, prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
