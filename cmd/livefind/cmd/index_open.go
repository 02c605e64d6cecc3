package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/config"
	"github.com/wesm/livefind/internal/indexer"
	"github.com/wesm/livefind/internal/livesearch"
	"github.com/wesm/livefind/internal/search"
	"github.com/wesm/livefind/internal/store"
)

// openIndex is the index database plus the search plumbing over it.
type openIndex struct {
	store   *store.Store
	backend *backend.SQLiteBackend
	builder *search.Builder
}

// openIndexDB opens the configured index, creating its schema if needed.
func openIndexDB() (*openIndex, error) {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	b, err := backend.NewSQLiteBackend(s.DB(),
		backend.WithScopeRetention(cfg.Search.ReuseCacheSize),
		backend.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open search backend: %w", err)
	}

	return &openIndex{store: s, backend: b, builder: newBuilder(cfg, s.FTSAvailable())}, nil
}

func (ix *openIndex) Close() error {
	return errors.Join(ix.backend.Close(), ix.store.Close())
}

func newBuilder(c *config.Config, fts bool) *search.Builder {
	self, err := os.UserHomeDir()
	if err != nil {
		self = ""
	}
	return search.NewBuilder(
		search.WithFTS(fts),
		search.WithProfileScope(search.NewProfileScope(c.Search.ProfilesRoot, self)),
	)
}

// coordinatorConfig maps [search] settings onto a coordinator config.
// debounce_ms = 0 means no delay.
func coordinatorConfig(c *config.Config) (livesearch.Config, error) {
	timeout, err := c.QueryTimeout()
	if err != nil {
		return livesearch.Config{}, err
	}
	debounce := c.DebounceInterval()
	if debounce == 0 {
		debounce = -1
	}
	return livesearch.Config{
		Debounce:            debounce,
		FinishPrefixQueries: c.Search.FinishPrefixQueries,
		QueryTimeout:        timeout,
		BatchSize:           c.Search.BatchSize,
		MaxResults:          c.Search.MaxResults,
		Policy:              livesearch.DisplayPolicy{CheckPaths: c.Search.CheckPaths},
		Logger:              logger,
	}, nil
}

// searchOptions returns the configured toggle defaults.
func searchOptions(c *config.Config) livesearch.Options {
	return livesearch.Options{
		ContentSearch:  c.Search.ContentSearch,
		MailSearch:     c.Search.MailSearch,
		AllUsersSearch: c.Search.AllUsersSearch,
	}
}

// indexerOptions maps [index] settings onto indexer options. Mail parsing
// is on when any mail directory is configured.
func indexerOptions(c *config.Config, roots []string) indexer.Options {
	if len(roots) == 0 {
		roots = c.IndexRoots()
	}
	return indexer.Options{
		Roots:           roots,
		Mail:            len(c.Index.Mail) > 0,
		MaxContentBytes: c.Index.MaxContentBytes,
		Workers:         c.Index.Workers,
		Logger:          logger,
	}
}

// toggleFlags holds --content, --mail and --all-users for commands that
// search.
type toggleFlags struct {
	content, mail, allUsers bool
}

func (f *toggleFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.content, "content", false, "also match file contents (default from search.content_search)")
	cmd.Flags().BoolVar(&f.mail, "mail", false, "include mail messages (default from search.mail_search)")
	cmd.Flags().BoolVar(&f.allUsers, "all-users", false, "include other users' profiles (default from search.all_users_search)")
}

// apply overrides defaults with the flags the user set explicitly.
func (f *toggleFlags) apply(cmd *cobra.Command, defaults livesearch.Options) livesearch.Options {
	opts := defaults
	if cmd.Flags().Changed("content") {
		opts.ContentSearch = f.content
	}
	if cmd.Flags().Changed("mail") {
		opts.MailSearch = f.mail
	}
	if cmd.Flags().Changed("all-users") {
		opts.AllUsersSearch = f.allUsers
	}
	return opts
}
