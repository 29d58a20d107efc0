// Package cli implements the client commands of the borrowbook binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/borrowbook/borrowbook/internal/business"
	"github.com/borrowbook/borrowbook/internal/cmdutils"
	"github.com/borrowbook/borrowbook/internal/config"
	"github.com/borrowbook/borrowbook/pkg/borrowbook"
	"github.com/borrowbook/borrowbook/pkg/jar"
)

// Options are the persistent flags shared by the client commands.
type Options struct {
	BuildInfo string
	Output    string
	Profile   string

	loadConfig func(buildInfo string) (*config.Config, error)
	runner     cmdutils.WrapperFunc
}

type result struct {
	Result string `json:"result"`
}

type sessionFunc func(ctx context.Context, s *business.Session, p *Printer, args []string) error

// Commands returns the client command tree.
func Commands(opts *Options) []*cobra.Command {
	return []*cobra.Command{
		loginCmd(opts),
		logoutCmd(opts),
		sessionCmd(opts),
		meCmd(opts),
		searchCmd(opts),
		booksCmd(opts),
		borrowCmd(opts),
		adminCmd(opts),
	}
}

// run restores the session of the selected profile, calls fn and persists
// the jar again, whatever fn returned.
func (o *Options) run(fn sessionFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p, err := NewPrinter(cmd.OutOrStdout(), Format(o.Output))
		if err != nil {
			return err
		}

		load := o.loadConfig
		if load == nil {
			load = cmdutils.LoadConfig
		}
		cfg, err := load(o.BuildInfo)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if o.Profile != "" {
			cfg.Jar.Profile = o.Profile
		}

		runner := o.runner
		if runner == nil {
			runner = cmdutils.RunAsJob
		}

		return runner(cmd.Context(), func(ctx context.Context, cfg *config.Config) error {
			s, err := business.OpenSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(ctx); err != nil {
					slogctx.Error(ctx, "Failed to persist the session", "error", err)
				}
			}()

			return LoginRequired(fn(ctx, s, p, args))
		}, cfg)
	}
}

func loginCmd(opts *Options) *cobra.Command {
	var provider, username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the backend",
		Long: "Prints the URL that starts the browser login. With --username the login " +
			"is completed directly against a development backend.",
		Args: cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			if username == "" {
				return p.Print(map[string]string{"loginURL": s.API.Auth.LoginURL(provider)})
			}

			err := s.API.Auth.Authorize(ctx, provider, url.Values{"username": {username}})
			if err != nil {
				return err
			}

			me, err := s.API.Users.Me(ctx)
			if err != nil {
				return err
			}

			return p.Print(me)
		}),
	}
	cmd.Flags().StringVar(&provider, "provider", borrowbook.DefaultProvider, "OAuth2 provider")
	cmd.Flags().StringVar(&username, "username", "", "log in as this user (development backend only)")

	return cmd
}

func logoutCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			if err := s.API.Auth.Logout(ctx); err != nil {
				return err
			}

			return p.Print(result{Result: "logged out"})
		}),
	}
}

func sessionCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage the stored cookies",
	}

	var reveal bool
	show := &cobra.Command{
		Use:   "show",
		Short: "List the cookies of the profile",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(_ context.Context, s *business.Session, p *Printer, _ []string) error {
			entries := s.Jar.Entries()
			if !reveal {
				for i := range entries {
					entries[i].Value = mask(entries[i].Value)
				}
			}

			return p.Print(entries)
		}),
	}
	show.Flags().BoolVar(&reveal, "reveal", false, "print cookie values")

	importCmd := &cobra.Command{
		Use:   "import NAME=VALUE...",
		Short: "Import cookies copied from a browser session",
		Args:  cobra.MinimumNArgs(1),
		RunE: opts.run(func(_ context.Context, s *business.Session, p *Printer, args []string) error {
			imported, err := importCookies(s.Jar, s.Client.BaseURL(), args)
			if err != nil {
				return err
			}

			return p.Print(map[string][]string{"imported": imported})
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every cookie of the profile",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			if err := s.Jar.Reset(ctx); err != nil {
				return err
			}

			return p.Print(result{Result: "session cleared"})
		}),
	}

	cmd.AddCommand(show, importCmd, clearCmd)

	return cmd
}

func importCookies(j *jar.Jar, baseURL string, args []string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	names := make([]string, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cookie %q, expected NAME=VALUE", arg)
		}

		j.SetCookies(base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
		names = append(names, name)
	}

	return names, nil
}

func mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}

	return v[:4] + strings.Repeat("*", 8)
}

func meCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			me, err := s.API.Users.Me(ctx)
			if err != nil {
				return err
			}

			return p.Print(me)
		}),
	}
}

func searchCmd(opts *Options) *cobra.Command {
	var page, size int

	cmd := &cobra.Command{
		Use:   "search TITLE",
		Short: "Search books of other users by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, args []string) error {
			found, err := s.API.Users.Search(ctx, strings.Join(args, " "), page, size)
			if err != nil {
				return err
			}

			return p.Print(found)
		}),
	}
	cmd.Flags().IntVar(&page, "page", 1, "page index, starting at 1")
	cmd.Flags().IntVar(&size, "size", 10, "page size")

	return cmd
}

func booksCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage book collections",
	}

	var nb borrowbook.NewBook
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a book to your collection",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			if err := s.API.Books.Add(ctx, nb); err != nil {
				return err
			}

			return p.Print(result{Result: "book added"})
		}),
	}
	add.Flags().StringVar(&nb.Title, "title", "", "title")
	add.Flags().StringSliceVar(&nb.Authors, "author", nil, "author, may be repeated")
	add.Flags().StringVar(&nb.Publisher, "publisher", "", "publisher")
	add.Flags().StringVar(&nb.ImageLink, "image", "", "cover image link")
	add.Flags().StringVar(&nb.GoogleBookID, "google-id", "", "Google Books volume id")
	_ = add.MarkFlagRequired("title")

	mine := &cobra.Command{
		Use:   "mine",
		Short: "List your collection",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			books, err := s.API.Books.MyCollection(ctx)
			if err != nil {
				return err
			}

			return p.Print(books)
		}),
	}

	borrowed := &cobra.Command{
		Use:   "borrowed",
		Short: "List the books you borrowed",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			books, err := s.API.Books.Borrowed(ctx)
			if err != nil {
				return err
			}

			return p.Print(books)
		}),
	}

	of := &cobra.Command{
		Use:   "of USER",
		Short: "List the collection of another user",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, args []string) error {
			books, err := s.API.Users.Books(ctx, args[0])
			if err != nil {
				return err
			}

			return p.Print(books)
		}),
	}

	cmd.AddCommand(add, mine, borrowed, of)

	return cmd
}

func borrowCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Negotiate borrow requests",
	}

	request := &cobra.Command{
		Use:   "request ID",
		Short: "Ask to borrow a book",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := s.API.Borrow.Request(ctx, id); err != nil {
				return err
			}

			return p.Print(result{Result: "request sent"})
		}),
	}

	var (
		proposal borrowbook.Proposal
		meeting  string
	)
	propose := &cobra.Command{
		Use:   "propose",
		Short: "Propose a meeting to hand over a book",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			t, err := time.Parse(time.RFC3339, meeting)
			if err != nil {
				return fmt.Errorf("parsing --meeting: %w", err)
			}
			proposal.MeetingTime = t

			if err := s.API.Borrow.Propose(ctx, proposal); err != nil {
				return err
			}

			return p.Print(result{Result: "proposal sent"})
		}),
	}
	propose.Flags().StringVar(&proposal.Username, "owner", "", "owner of the book")
	propose.Flags().Int64Var(&proposal.BookID, "book", 0, "user book id")
	propose.Flags().StringVar(&meeting, "meeting", "", "meeting time, RFC 3339")
	propose.Flags().StringVar(&proposal.Location, "location", "", "meeting location")
	for _, name := range []string{"owner", "book", "meeting", "location"} {
		_ = propose.MarkFlagRequired(name)
	}

	var page, size int
	incoming := &cobra.Command{
		Use:   "incoming",
		Short: "List requests for your books",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			requests, err := s.API.Borrow.Incoming(ctx, page, size)
			if err != nil {
				return err
			}

			return p.Print(requests)
		}),
	}
	incoming.Flags().IntVar(&page, "page", 1, "page index, starting at 1")
	incoming.Flags().IntVar(&size, "size", 10, "page size")

	decide := func(use, short, done string, decision func(*borrowbook.BorrowClient, context.Context, int64) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := decision(s.API.Borrow, ctx, id); err != nil {
					return err
				}

				return p.Print(result{Result: done})
			}),
		}
	}

	cmd.AddCommand(
		request,
		propose,
		incoming,
		decide("accept", "Accept a borrow request", "request accepted", (*borrowbook.BorrowClient).Accept),
		decide("reject", "Reject a borrow request", "request rejected", (*borrowbook.BorrowClient).Reject),
	)

	return cmd
}

func adminCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var page, size int
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, _ []string) error {
			all, err := s.API.Admin.ListUsers(ctx, page, size)
			if err != nil {
				return err
			}

			return p.Print(all)
		}),
	}
	list.Flags().IntVar(&page, "page", 1, "page index, starting at 1")
	list.Flags().IntVar(&size, "size", 10, "page size")

	del := &cobra.Command{
		Use:   "delete USER",
		Short: "Delete a user with their books and requests",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, s *business.Session, p *Printer, args []string) error {
			if err := s.API.Admin.DeleteUser(ctx, args[0]); err != nil {
				return err
			}

			return p.Print(result{Result: "user deleted"})
		}),
	}

	users.AddCommand(list, del)
	cmd.AddCommand(users)

	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}

	return id, nil
}
