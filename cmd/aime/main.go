// Package main provides the AI.me CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rivadaviam/AI.me/pkg/aime"
	"github.com/rivadaviam/AI.me/pkg/config"
	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/reason"
	"github.com/rivadaviam/AI.me/pkg/server"
	"github.com/rivadaviam/AI.me/pkg/storage"
	"github.com/rivadaviam/AI.me/pkg/version"
)

var (
	buildVersion = "0.1.0"
	buildCommit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aime",
		Short: "AI.me - versioned semantic-graph store with grounded reasoning",
		Long: `AI.me stores knowledge graphs as immutable, versioned snapshots and
answers queries with auditable, groundedness-scored subgraphs.

Features:
  • Append-only graph versioning with temporal expiry
  • Deterministic subgraph extraction
  • Groundedness scoring before any knowledge is exported
  • Full audit trail for every reasoning decision`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("AI.me v%s (%s)\n", buildVersion, buildCommit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("data-dir", "./data", "Data directory")
	serveCmd.Flags().Int("port", 8484, "HTTP API port")
	serveCmd.Flags().Bool("no-auth", false, "Disable authentication")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a data directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(initCmd)

	publishCmd := &cobra.Command{
		Use:   "publish <graph-id> <file>",
		Short: "Publish a graph version from a JSON or YAML file",
		Args:  cobra.ExactArgs(2),
		RunE:  runPublish,
	}
	publishCmd.Flags().String("data-dir", "./data", "Data directory")
	publishCmd.Flags().String("kind", "minor", "Version kind: major, minor, patch, temporal")
	publishCmd.Flags().String("summary", "", "Version summary")
	publishCmd.Flags().String("expires", "", "Expiry (RFC 3339) for temporal versions")
	rootCmd.AddCommand(publishCmd)

	queryCmd := &cobra.Command{
		Use:   "query <graph-id> <query...>",
		Short: "Run a grounded reasoning query",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runQuery,
	}
	queryCmd.Flags().String("data-dir", "./data", "Data directory")
	queryCmd.Flags().Int64("seq", 0, "Pin an exact version (0 = latest)")
	queryCmd.Flags().String("as-of", "", "Resolve the version current at this instant (RFC 3339)")
	queryCmd.Flags().String("session", "", "Session ID for the audit trail")
	queryCmd.Flags().Bool("triples", false, "Print exported triples")
	rootCmd.AddCommand(queryCmd)

	versionsCmd := &cobra.Command{
		Use:   "versions <graph-id>",
		Short: "List a graph's published versions",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersions,
	}
	versionsCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(versionsCmd)

	traceCmd := &cobra.Command{
		Use:   "trace <session-id>",
		Short: "Print a session's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrace,
	}
	traceCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(traceCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	return cfg, nil
}

func openDB(cmd *cobra.Command) (*aime.DB, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := aime.Open(cfg.Database.DataDir, cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if noAuth, _ := cmd.Flags().GetBool("no-auth"); noAuth {
		cfg.Auth.Enabled = false
	}

	fmt.Printf("Starting AI.me v%s\n", buildVersion)
	fmt.Printf("  Data directory: %s\n", cfg.Database.DataDir)
	fmt.Printf("  HTTP API:       http://localhost:%d\n", cfg.Server.Port)
	fmt.Println()

	if err := os.MkdirAll(cfg.Database.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	db, err := aime.Open(cfg.Database.DataDir, cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(db, &server.Config{
		Address:      cfg.Server.Address,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	fmt.Printf("Listening on %s\n", srv.Addr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func runInit(cmd *cobra.Command, args []string) error {
	db, cfg, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("Initialized data directory %s\n", cfg.Database.DataDir)
	return nil
}

type publishFile struct {
	Nodes []*graph.Node `json:"nodes" yaml:"nodes"`
	Edges []*graph.Edge `json:"edges" yaml:"edges"`
}

func runPublish(cmd *cobra.Command, args []string) error {
	graphID, path := args[0], args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var pf publishFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &pf)
	default:
		err = json.Unmarshal(data, &pf)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	kindStr, _ := cmd.Flags().GetString("kind")
	kind, err := version.ParseKind(kindStr)
	if err != nil {
		return err
	}
	summary, _ := cmd.Flags().GetString("summary")

	var expires time.Time
	if s, _ := cmd.Flags().GetString("expires"); s != "" {
		expires, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parsing expiry: %w", err)
		}
	}

	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := db.PublishVersion(cmd.Context(), storage.Publication{
		GraphID:   graph.GraphID(graphID),
		Kind:      kind,
		Summary:   summary,
		ExpiresAt: expires,
		Nodes:     pf.Nodes,
		Edges:     pf.Edges,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Published %s (%s): %d nodes, %d edges\n", v, v.Kind, v.NodeCount, v.EdgeCount)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	graphID := args[0]
	query := strings.Join(args[1:], " ")

	seq, _ := cmd.Flags().GetInt64("seq")
	session, _ := cmd.Flags().GetString("session")

	var asOf time.Time
	if s, _ := cmd.Flags().GetString("as-of"); s != "" {
		var err error
		asOf, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("parsing as-of: %w", err)
		}
	}

	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	d, err := db.Query(cmd.Context(), reason.Request{
		GraphID:   graph.GraphID(graphID),
		Seq:       seq,
		AsOf:      asOf,
		Query:     query,
		SessionID: session,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Graph:     %s@%d\n", d.GraphID, d.Seq)
	fmt.Printf("Grounded:  %v (score %.2f, threshold %.2f)\n",
		d.Grounded, d.Report.Score, d.Report.Threshold)
	fmt.Printf("Subgraph:  %d nodes, %d edges\n", d.Subgraph.NodeCount(), d.Subgraph.EdgeCount())
	for _, issue := range d.Report.Issues {
		fmt.Printf("Issue:     %s\n", issue)
	}
	for _, warn := range d.Report.Warnings {
		fmt.Printf("Warning:   %s\n", warn)
	}

	if show, _ := cmd.Flags().GetBool("triples"); show {
		for _, tr := range d.Triples {
			fmt.Printf("  (%s, %s, %s)\n", tr.Subject, tr.Predicate, tr.Object)
		}
	}
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	vs, err := db.Versions(cmd.Context(), graph.GraphID(args[0]))
	if err != nil {
		return err
	}

	for _, v := range vs {
		line := fmt.Sprintf("%s  %-8s  %d nodes, %d edges  %s",
			v, v.Kind, v.NodeCount, v.EdgeCount, v.CreatedAt.Format(time.RFC3339))
		if !v.ExpiresAt.IsZero() {
			line += fmt.Sprintf("  expires %s", v.ExpiresAt.Format(time.RFC3339))
		}
		if v.Summary != "" {
			line += "  " + v.Summary
		}
		fmt.Println(line)
	}
	return nil
}

func runTrace(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	events := db.Trace(args[0])
	if len(events) == 0 {
		fmt.Println("No events for session", args[0])
		return nil
	}

	for _, e := range events {
		fmt.Printf("%s  %-20s  %s\n", e.Timestamp.Format(time.RFC3339), e.Kind, e.CorrelationID)
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %s: %v\n", k, e.Details[k])
		}
	}
	return nil
}
