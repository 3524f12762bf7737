package cmd

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	u "net/url"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/resumer/internal/metrics"
	"github.com/tanq16/resumer/internal/output"
	"github.com/tanq16/resumer/internal/resume"
	"github.com/tanq16/resumer/internal/utils"
	"golang.org/x/net/publicsuffix"
)

var (
	outputPath    string
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	cookies       []string
	noProgress    bool
	noResume      bool
	noRetry       bool
	maxRetries    int
	retryDelay    time.Duration
	debug         bool
	logFile       string
	metricsFile   string
)

var ResumerVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "resumer [URL]",
	Short:   "Resumer is a CLI downloader that picks up where an interrupted transfer stopped",
	Version: ResumerVersion,
	Args:    cobra.ExactArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug, logFile)
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn().Str("op", "cmd").Err(err).Msg("Metrics registration failed")
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		writeMetrics()
	},
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]
		if parsed, err := u.Parse(url); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			output.PrintError(os.Stderr, "Invalid URL format")
			os.Exit(1)
		}
		opts, err := taskOptions(url)
		if err != nil {
			output.PrintError(os.Stderr, err.Error())
			os.Exit(1)
		}
		opts = append(opts, resume.WithPath(outputPath))
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		task, err := resume.New(url, opts...)
		if err != nil {
			output.PrintError(os.Stderr, fmt.Sprintf("Cannot start download: %v", err))
			os.Exit(1)
		}
		err = task.Start(ctx)
		task.Close()
		if err != nil {
			writeMetrics()
			output.PrintError(os.Stderr, fmt.Sprintf("Download failed: %v", err))
			os.Exit(1)
		}
		if task.IsFinished() || task.State() == resume.StateFinished {
			output.PrintSuccess(os.Stderr, fmt.Sprintf("Saved %s", task.Path))
			return
		}
		output.PrintWarning(os.Stderr, fmt.Sprintf("Server cannot resume, partial file kept at %s", task.Path))
	},
}

func Execute() {
	rootCmd.AddCommand(newBatchCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// taskOptions turns the shared flags into controller options. The cookie
// jar is keyed on url so host-only cookies apply to it.
func taskOptions(url string) ([]resume.Option, error) {
	httpClientConfig := clientConfig()
	opts := []resume.Option{
		resume.WithHTTPConfig(httpClientConfig),
		resume.WithHeaders(utils.ParseHeaderArgs(headers)),
		resume.WithProgress(!noProgress),
		resume.WithResume(!noResume),
		resume.WithAutoRetry(!noRetry),
		resume.WithMaxRetries(maxRetries),
		resume.WithRetryDelay(retryDelay),
	}
	if len(cookies) > 0 {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("error creating cookie jar: %w", err)
		}
		target, err := u.Parse(url)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		jar.SetCookies(target, utils.ParseCookieArgs(cookies))
		opts = append(opts, resume.WithSession(jar))
	}
	return opts, nil
}

// clientConfig builds the transport settings for one task. Flag values are
// read, never written, so every batch entry starts from the same flags.
func clientConfig() utils.HTTPClientConfig {
	cfg := utils.HTTPClientConfig{
		Timeout:       timeout,
		KATimeout:     kaTimeout,
		ProxyURL:      proxyURL,
		ProxyUsername: proxyUsername,
		ProxyPassword: proxyPassword,
		UserAgent:     userAgent,
	}
	if cfg.UserAgent == "randomize" {
		cfg.UserAgent = utils.GetRandomUserAgent()
	}
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(cfg.ProxyURL)
	if err == nil && parsedProxy.User != nil && cfg.ProxyUsername == "" {
		cfg.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.ProxyURL = parsedProxy.String()
	}
	return cfg
}

func writeMetrics() {
	if metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
		log.Error().Str("op", "cmd").Err(err).Msgf("Error writing metrics to %s", metricsFile)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")

	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection and response-header timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringArrayVarP(&cookies, "cookie", "b", []string{}, "Cookie as name=value; can be specified multiple times")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", 0, "Maximum retries after an interrupted transfer (0 retries until complete)")
	rootCmd.PersistentFlags().DurationVar(&retryDelay, "retry-delay", 0, "Pause between retries (eg. 500ms, 2s)")

	// flags without shorthand
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "Do not print download progress")
	rootCmd.PersistentFlags().BoolVar(&noResume, "no-resume", false, "Overwrite an existing file instead of resuming it")
	rootCmd.PersistentFlags().BoolVar(&noRetry, "no-retry", false, "Make a single attempt and fail on interruption")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated); eg. "+utils.LogFile)
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path on exit")
}
