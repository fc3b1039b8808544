package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"esgrag/internal/config"
	"esgrag/internal/domain"
	"esgrag/internal/journal"
	"esgrag/internal/render"
	"esgrag/internal/server"
	"esgrag/internal/service"
	"esgrag/internal/tui"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.AppConfig
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "esgrag",
	Short:   "Question answering over a sustainability report",
	Long:    "esgrag answers questions about an ESG sustainability report from its KPI tables and narrative text.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}
		var err error
		if configPath == "" {
			cfg, configPath, err = config.LoadDefault()
		} else {
			cfg, err = config.Load(configPath)
		}
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

var (
	askAccurate bool
	askJSON     bool
	serveAddr   string
	historyN    int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML or TOML)")

	askCmd.Flags().BoolVarP(&askAccurate, "accurate", "a", false, "Use ACCURATE mode")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw result as JSON")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	historyCmd.Flags().IntVarP(&historyN, "limit", "n", 20, "Number of entries to show")

	rootCmd.AddCommand(askCmd, chatCmd, serveCmd, historyCmd, initCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("esgrag", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := configPath
		if target == "" {
			var err error
			if target, err = config.DefaultUserConfigPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}
		c, err := config.Load(target)
		if err != nil {
			return err
		}
		if err := config.Save(target, c); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Set OPENAI_API_KEY, WEAVIATE_URL and API_SECRET_KEY (or a .env file) before asking questions.")
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Answer one question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}
		j := openJournal(cfg)
		if j != nil {
			defer j.Close()
		}

		question := strings.Join(args, " ")
		opts := service.Options{Accurate: askAccurate}
		res, err := svc.Execute(cmd.Context(), question, opts)
		if e, ok := journalEntry(question, opts, res, err); ok && j != nil {
			if _, jerr := j.Record(cmd.Context(), e); jerr != nil {
				log.Printf("journal: %v", jerr)
			}
		}
		if err != nil {
			return err
		}

		switch {
		case askJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		case term.IsTerminal(int(os.Stdout.Fd())):
			fmt.Print(render.Terminal(res, terminalWidth()))
		default:
			fmt.Print(render.Markdown(res))
		}
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}
		_, err = tea.NewProgram(tui.New(cmd.Context(), svc, render.DetectStyle()), tea.WithAltScreen()).Run()
		return err
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildService(cfg)
		if err != nil {
			return err
		}
		var rec server.Recorder
		if j := openJournal(cfg); j != nil {
			defer j.Close()
			rec = j
		}
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := server.New(svc, rec, server.Config{
			APIKey:     os.Getenv(cfg.Server.APIKeyEnv),
			RatePerSec: cfg.Server.RatePerSec,
			Burst:      cfg.Server.Burst,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Printf("Starting server at http://localhost%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, addr, srv.Handler())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently asked questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		entries, err := j.Recent(cmd.Context(), historyN)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No questions recorded yet.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tMODE\tTABLES\tSOURCES\tELAPSED\tQUESTION\tERROR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2fs\t%s\t%s\n",
				e.CreatedAt.Local().Format(time.DateTime), e.Mode, e.KpiTables, e.Sources, e.Elapsed, e.Question, e.Error)
		}
		return w.Flush()
	},
}

// journalEntry describes an asked question for the journal. Empty questions
// are not recorded.
func journalEntry(question string, opts service.Options, res domain.QueryResult, err error) (journal.Entry, bool) {
	if errors.Is(err, domain.ErrEmptyQuestion) {
		return journal.Entry{}, false
	}
	e := journal.Entry{
		Question:  question,
		Mode:      string(opts.Mode()),
		KpiTables: len(res.KpiTables),
		Sources:   len(res.Sources),
		Elapsed:   res.Time,
	}
	if err != nil {
		e.Stage, e.Error = domain.StageOf(err), err.Error()
	}
	return e, true
}

func openJournal(c *config.AppConfig) *journal.Journal {
	if !c.Journal.Enabled {
		return nil
	}
	j, err := journal.Open(c.Journal.Path)
	if err != nil {
		log.Printf("journal disabled: %v", err)
		return nil
	}
	return j
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}
