package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/gpyt/internal/ledger"
	"github.com/desertthunder/gpyt/internal/repositories"
	"github.com/desertthunder/gpyt/internal/services"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/desertthunder/gpyt/internal/storage"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Google clients are built lazily so commands that never touch the network (setup, ledger export from
// sqlite, runs) work without a token.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	photosURL  string
	youtubeURL string
	logger     *log.Logger
	output     io.Writer

	photos  *services.PhotosService
	youtube *services.YouTubeService
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client // skips OAuth when set
	PhotosURL  string
	YouTubeURL string
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		photosURL:  opts.PhotosURL,
		youtubeURL: opts.YouTubeURL,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, videosCommand, migrateCommand, ledgerCommand, runsCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config and applies --verbose.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := shared.ResolveConfig(path)
	if err != nil {
		return ctx, err
	}

	r.config = config
	r.configPath = path
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.Log.Level))
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	l.SetLevel(r.logger.GetLevel())
	r.logger = l
}

// googleClient returns the authorized client shared by both services.
func (r *Runner) googleClient(ctx context.Context) (*http.Client, error) {
	if r.httpClient != nil {
		return r.httpClient, nil
	}

	creds := r.config.Credentials.Google
	oauthConfig, err := services.NewGoogleOAuthConfig(creds)
	if err != nil {
		return nil, err
	}
	token, err := shared.LoadToken(creds.TokenFile)
	if err != nil {
		return nil, err
	}

	r.httpClient = services.NewGoogleClient(ctx, oauthConfig, token, creds.TokenFile, r.config.HTTP.Timeout, r.logger)
	return r.httpClient, nil
}

func (r *Runner) photosService(ctx context.Context) (*services.PhotosService, error) {
	if r.photos != nil {
		return r.photos, nil
	}
	client, err := r.googleClient(ctx)
	if err != nil {
		return nil, err
	}
	r.photos = services.NewPhotosService(r.photosURL, client, shared.WithLogger(r.logger, "component", "photos"))
	return r.photos, nil
}

func (r *Runner) youtubeService(ctx context.Context) (*services.YouTubeService, error) {
	if r.youtube != nil {
		return r.youtube, nil
	}
	client, err := r.googleClient(ctx)
	if err != nil {
		return nil, err
	}
	r.youtube = services.NewYouTubeService(r.youtubeURL, client, shared.WithLogger(r.logger, "component", "youtube"))
	return r.youtube, nil
}

// openDatabase opens the configured sqlite database with an up to date schema.
func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", r.config.Database.Path, err)
	}
	return db, nil
}

// ledgerBackend builds the configured backend. The returned func releases what it opened.
func (r *Runner) ledgerBackend(ctx context.Context, name string) (ledger.Backend, func(), error) {
	noop := func() {}
	if name == "" {
		name = r.config.Ledger.Backend
	}

	switch strings.ToLower(name) {
	case "sentinel":
		photos, err := r.photosService(ctx)
		if err != nil {
			return nil, noop, err
		}
		logger := shared.WithLogger(r.logger, "component", "ledger")
		return ledger.NewSentinelBackend(photos, r.config.Ledger.AlbumTitle, logger), noop, nil

	case "sqlite":
		db, err := r.openDatabase()
		if err != nil {
			return nil, noop, err
		}
		return repositories.NewLedgerRepository(db), func() { db.Close() }, nil

	case "s3":
		client, err := storage.New(r.config.Storage)
		if err != nil {
			return nil, noop, err
		}
		key := r.config.Ledger.ObjectKey
		if key == "" {
			key = ledger.DefaultObjectKey
		}
		return ledger.NewObjectBackend(client, key), noop, nil

	default:
		return nil, noop, fmt.Errorf("%w: %q", shared.ErrUnknownBackend, name)
	}
}

// openLedger loads the ledger from the backend named by the --backend flag, or the configured one.
func (r *Runner) openLedger(ctx context.Context, cmd *cli.Command) (*ledger.Ledger, func(), error) {
	backend, release, err := r.ledgerBackend(ctx, cmd.String("backend"))
	if err != nil {
		return nil, release, err
	}

	l, err := ledger.Open(ctx, backend, shared.WithLogger(r.logger, "component", "ledger"))
	if err != nil {
		release()
		return nil, func() {}, err
	}
	return l, release, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
