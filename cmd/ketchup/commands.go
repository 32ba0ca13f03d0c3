package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tartampluch/go-ketchup/internal/app"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	"github.com/tartampluch/go-ketchup/internal/importer"
	"github.com/tartampluch/go-ketchup/internal/locale"
	"github.com/tartampluch/go-ketchup/internal/server"
	"github.com/tartampluch/go-ketchup/internal/store"
)

// cli holds the state shared by the commands of one invocation.
type cli struct {
	out io.Writer
	in  io.Reader

	debug     bool
	dataDir   string
	storeKind string
	lang      string
	port      string

	settings  config.Settings
	repo      store.Repository
	logCloser io.Closer
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               config.CmdRoot,
		Short:             config.DescRoot,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&c.debug, config.FlagDebug, false, config.FlagDescDebug)
	flags.StringVar(&c.dataDir, config.FlagDataDir, "", config.FlagDescDataDir)
	flags.StringVar(&c.storeKind, config.FlagStore, "", config.FlagDescStore)
	flags.StringVar(&c.lang, config.FlagLanguage, "", config.FlagDescLanguage)

	root.AddCommand(
		c.versionCommand(),
		c.queueCommand(),
		c.sessionCommand(),
		c.importCommand(),
		c.seedCommand(),
		c.serveCommand(),
	)
	return root
}

// setup runs before every command: logging first, then settings with the
// command line flags applied on top.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	c.logCloser = setupLogging(c.debug)

	s, err := config.Load(c.flagOverrides)
	if err != nil {
		return err
	}
	c.settings = s

	logStartupInfo(s)
	return nil
}

// flagOverrides copies the flags that were set onto s.
func (c *cli) flagOverrides(s *config.Settings) {
	if c.dataDir != "" {
		s.DataDir = c.dataDir
	}
	if c.storeKind != "" {
		s.StoreKind = c.storeKind
	}
	if c.lang != "" {
		s.Language = c.lang
	}
	if c.port != "" {
		s.Port = c.port
	}
}

// service opens the configured store and wraps it in an app.Service.
func (c *cli) service() (*app.Service, error) {
	repo, err := store.Open(c.settings)
	if err != nil {
		return nil, err
	}
	c.repo = repo

	trigger := ""
	if c.settings.Reminder {
		trigger = c.settings.ReminderTrigger
	}

	return app.New(app.Options{
		Repo:            repo,
		Scorer:          engine.NewScorer(c.settings.Scoring),
		Translator:      locale.New(c.settings.Language),
		ReminderTrigger: trigger,
	}), nil
}

func (c *cli) close() {
	if c.repo != nil {
		_ = c.repo.Close()
	}
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   config.CmdVersion,
		Short: config.DescVersion,
		Args:  cobra.NoArgs,
		// Skip the store and settings entirely.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(*cobra.Command, []string) {
			printVersion(c.out)
		},
	}
}

func (c *cli) queueCommand() *cobra.Command {
	var query string
	var limit int

	cmd := &cobra.Command{
		Use:   config.CmdQueue,
		Short: config.DescQueue,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			return c.showQueue(cmd.Context(), svc, query, limit)
		},
	}

	cmd.Flags().StringVar(&query, config.FlagQuery, "", config.FlagDescQuery)
	cmd.Flags().IntVar(&limit, config.FlagLimit, config.DefaultQueueLimit, config.FlagDescLimit)
	return cmd
}

// showQueue prints at most limit entries. Relative times are measured
// from the service clock, the same instant the scores were computed at.
func (c *cli) showQueue(ctx context.Context, svc *app.Service, query string, limit int) error {
	now := svc.Clock().Now()
	ranked, err := svc.Queue(ctx, query)
	if err != nil {
		return err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return c.printQueue(svc.Translator(), ranked, now)
}

func (c *cli) printQueue(tr *locale.Translator, ranked []engine.Ranked, now time.Time) error {
	if len(ranked) == 0 {
		_, err := fmt.Fprintln(c.out, tr.Msg(config.TKeyQueueEmpty, nil))
		return err
	}

	_, _ = fmt.Fprintln(c.out, tr.Plural(config.TKeyQueueHeader, len(ranked), nil))

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for i, r := range ranked {
		last := tr.Msg(config.TKeyNeverContacted, nil)
		if r.Contact.LastContacted != nil {
			last = humanize.RelTime(*r.Contact.LastContacted, now, "ago", "from now")
		}
		_, _ = fmt.Fprintf(tw, config.MsgQueueLine,
			i+1,
			r.Contact.Name,
			humanize.FtoaWithDigits(r.Score, 1),
			r.Contact.Relationship,
			last,
			tr.DueIn(r.DueInDays),
		)
	}
	return tw.Flush()
}

func (c *cli) sessionCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   config.CmdSession,
		Short: config.DescSession,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), svc, c.in, c.out, query)
		},
	}

	cmd.Flags().StringVar(&query, config.FlagQuery, "", config.FlagDescQuery)
	return cmd
}

// runSession drives a catch-up session from line-based key input until the
// queue is exhausted, the user quits or in is closed.
func runSession(ctx context.Context, svc *app.Service, in io.Reader, out io.Writer, query string) error {
	tr := svc.Translator()
	view, err := svc.StartSession(ctx, query)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		switch view.State {
		case engine.StateEmpty:
			_, _ = fmt.Fprintln(out, tr.Msg(config.TKeySessionDone, nil))
			return nil
		case engine.StateActive:
			_, _ = fmt.Fprintln(out, tr.Msg(config.TKeySessionCurrent, map[string]any{
				"Name":      view.Head.Name,
				"Remaining": view.Remaining,
			}))
			_, _ = fmt.Fprintln(out, tr.Msg(config.TKeySessionPrompt, nil))
		case engine.StateAwaitingAction:
			_, _ = fmt.Fprintln(out, tr.Msg(config.TKeySessionPicked, map[string]any{"Name": view.Picked.Name}))
			if view.Links != nil {
				for _, link := range []string{view.Links.Tel, view.Links.SMS} {
					if link != "" {
						_, _ = fmt.Fprintf(out, config.MsgLinkLine, link)
					}
				}
			}
		}

		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var next app.SessionView
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case config.KeyDefer:
			next, err = svc.Defer(ctx)
		case config.KeyPick:
			next, err = svc.Pick(ctx)
		case config.KeyCall:
			next, err = svc.Resolve(ctx, config.ActionCall)
		case config.KeyText:
			next, err = svc.Resolve(ctx, config.ActionText)
		case config.KeyCancel:
			next, err = svc.CancelPick(ctx)
		case config.KeyQuit:
			return nil
		default:
			continue
		}

		// A key that does not apply to the current state is ignored.
		if errors.Is(err, engine.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return err
		}
		view = next
	}
}

func (c *cli) importCommand() *cobra.Command {
	var url, user string

	cmd := &cobra.Command{
		Use:   config.CmdImport + config.ArgsImport,
		Short: config.DescImport,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := importer.Source{URL: url, User: user}
			if len(args) == 1 {
				src.Path = args[0]
			}
			if src.Path == "" && src.URL == "" {
				src.URL = c.settings.CardDAVURL
			}
			if src.Path == "" && src.URL == "" {
				return errors.New(config.ErrImportSource)
			}

			if src.Path == "" {
				if src.User == "" {
					src.User = c.settings.CardDAVUser
				}
				password, err := config.Password(src.User)
				if err != nil {
					return err
				}
				src.Password = password
			}

			svc, err := c.service()
			if err != nil {
				return err
			}
			stats, err := svc.Import(cmd.Context(), src)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, config.MsgImportOutput, stats.Imported, stats.Cards, stats.Skipped)
			return err
		},
	}

	cmd.Flags().StringVar(&url, config.FlagURL, "", config.FlagDescURL)
	cmd.Flags().StringVar(&user, config.FlagUser, "", config.FlagDescUser)
	return cmd
}

func (c *cli) seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   config.CmdSeed,
		Short: config.DescSeed,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			if err := svc.Seed(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, config.MsgSeedOutput, c.settings.StorePath())
			return err
		},
	}
}

func (c *cli) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   config.CmdServe,
		Short: config.DescServe,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}

			src := importer.Source{URL: c.settings.CardDAVURL, User: c.settings.CardDAVUser}
			if src.URL != "" {
				if src.Password, err = config.Password(src.User); err != nil {
					return err
				}
			}

			calendar := server.NewCalendarServer(svc.Clock())
			worker := app.NewWorker(svc, calendar, src, c.settings.RefreshInterval)
			addr := c.settings.ListenAddr()

			_, _ = fmt.Fprintf(c.out, config.MsgServeOutput, addr, config.RouteCalendar)
			return serve(cmd.Context(), addr, server.NewAPI(svc, calendar), worker)
		},
	}

	cmd.Flags().StringVar(&c.port, config.FlagPort, "", config.FlagDescPort)
	return cmd
}

// serve runs the HTTP server and the refresh worker until ctx is cancelled
// or one of them fails. SIGHUP forces an immediate refresh.
func serve(ctx context.Context, addr string, api *server.API, worker *app.Worker) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start(gctx, addr, api)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		hup := make(chan os.Signal, config.ChannelBufferSize)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-gctx.Done():
				slog.Info(config.MsgCtxCancel, config.LogKeyComponent, config.CompMain)
				return nil
			case <-hup:
				slog.Info(config.MsgRefreshSignal, config.LogKeyComponent, config.CompMain)
				worker.Trigger()
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	return nil
}
