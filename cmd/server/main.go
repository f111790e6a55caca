package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/store"
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomchat: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// options holds the command line overrides.
type options struct {
	envFile string
	addr    string
	driver  string
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("roomchat", pflag.ContinueOnError)
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&opts.addr, "addr", "", "listen address, overrides SERVER_PORT")
	flags.StringVar(&opts.driver, "store", "", "message store driver (sqlite, badger, memory), overrides STORE_DRIVER")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	// Same normalization as STORE_DRIVER.
	opts.driver = strings.ToLower(strings.TrimSpace(opts.driver))
	return opts, nil
}

func run(args []string) (int, error) {
	opts, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("load %s: %w", opts.envFile, err)
	}

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return 0, err
	}
	if opts.addr != "" {
		cfg.Port = opts.addr
	}
	if opts.driver != "" {
		cfg.Store.Driver = opts.driver
	}

	log := server.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	log.Info("Starting roomchat server", "store", cfg.Store.Driver, "addr", cfg.Port)

	st, err := store.Open(cfg.Store.Options())
	if err != nil {
		return 0, err
	}

	srv := server.New(*cfg, st, log)
	srv.StartHub()

	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())
	ln, err := server.Listen(httpServer)
	if err != nil {
		_ = srv.Hub().Shutdown(cfg.ShutdownTimeout)
		_ = st.Close()
		return 0, fmt.Errorf("listen on %s: %w", cfg.Port, err)
	}

	go func() {
		if err := server.StartServer(httpServer, ln, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped unexpectedly", "error", err)
		}
	}()

	// HTTP first so no new sockets arrive, then the hub, then the store the
	// sessions write to.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"roomchat": func(ctx context.Context) error {
				log.Info("Graceful shutdown initiated")
				return errors.Join(
					server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log),
					srv.Hub().Shutdown(cfg.ShutdownTimeout),
					st.Close(),
				)
			},
		},
	)

	exitCode := <-wait
	log.Info("Server exited", "code", exitCode)
	return exitCode, nil
}
