package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	offlineagent "github.com/offline-agent/offline-agent"
	"github.com/offline-agent/offline-agent/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	prefixFlag         string
	versionFlag        string
	dbFilenameFlag     string
	providerFlag       string
	fetchTimeoutFlag   time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Application origin URL (overrides config)")
	flag.StringVar(&prefixFlag, "prefix", "", "Namespace naming prefix (overrides config)")
	flag.StringVar(&versionFlag, "version", "", "Asset generation version (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "offline-agent.db", "Store DB file name (use 'memory' for an in-memory db)")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Store provider to use (sqlite or memory)")
	flag.DurationVar(&fetchTimeoutFlag, "fetch-timeout", 0, "Synchronous origin fetch timeout (0 for default)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config, err := getConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}

	// flags override env and file
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	if originFlag != "" {
		config.Origin = originFlag
	}
	if prefixFlag != "" {
		config.AppPrefix = prefixFlag
	}
	if versionFlag != "" {
		config.Version = versionFlag
	}
	if setFlags["port"] || config.Port == 0 {
		config.Port = portFlag
	}
	if setFlags["db"] || config.DB == "" {
		config.DB = dbFilenameFlag
	}
	if setFlags["provider"] || config.Provider == "" {
		config.Provider = providerFlag
	}
	if len(config.Manifest) == 0 {
		config.Manifest = []string{"/", "/index.html", "/manifest.json"}
	}

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	if config.AppPrefix == "" || config.Version == "" {
		log.Fatal().Msg("Please specify app prefix and version")
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	// use configured provider, fail if unsupported
	var provider store.Provider
	switch config.Provider {
	case "sqlite":
		dbFilename := config.DB
		if dbFilename == "memory" {
			dbFilename = ""
		}
		provider = store.NewSQLiteStore(dbFilename)
	case "memory":
		provider = store.NewMemoryStore()
	default:
		log.Fatal().Msgf("Unsupported store provider: %s", config.Provider)
	}

	agent, err := offlineagent.New(offlineagent.Config{
		Store:        provider,
		OriginURL:    *originURL,
		AppPrefix:    config.AppPrefix,
		Version:      config.Version,
		Manifest:     config.Manifest,
		Logger:       &log.Logger,
		FetchTimeout: fetchTimeoutFlag,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create agent")
	}

	// a failed install is terminal for this attempt: the previous
	// generation (if any) keeps serving until a future install succeeds
	ctx := context.Background()
	if err := agent.Install(ctx); err != nil {
		log.Error().Err(err).Msg("Install failed, serving previous generation")
	} else if err := agent.Activate(ctx); err != nil {
		log.Error().Err(err).Msg("Activation failed")
	}

	r := chi.NewRouter()
	r.Post(offlineagent.ControlPath, agent.ControlHandler().ServeHTTP)
	r.Handle("/*", agent)

	log.Info().Msgf("Serving %s on port %v (namespace '%s')",
		originURL.String(), config.Port, agent.Lifecycle().Namespace())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r); err != nil {
		panic(err)
	}
}
