package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duynguyendang/factgraph/internal/config"
	"github.com/duynguyendang/factgraph/pkg/export"
	"github.com/duynguyendang/factgraph/pkg/graph"
	"github.com/duynguyendang/factgraph/pkg/ingest"
	"github.com/duynguyendang/factgraph/pkg/server"
	"github.com/duynguyendang/factgraph/pkg/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var configPath, envFile string

	rootCmd := &cobra.Command{
		Use:           "factgraph",
		Short:         "Access-filtered, retraction-aware graph over threat intelligence facts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file (default .env)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath, envFile)
		if err != nil {
			return nil, err
		}
		slog.SetDefault(cfg.NewLogger(os.Stderr))
		return cfg, nil
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("factgraph v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (overrides configuration)")
	rootCmd.AddCommand(serveCmd)

	importCmd := &cobra.Command{
		Use:   "import <file-or-directory>",
		Short: "Import a JSON dataset of types, objects and facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cfg, args[0])
		},
	}
	rootCmd.AddCommand(importCmd)

	traverseCmd := &cobra.Command{
		Use:   "traverse <object-id>...",
		Short: "Walk the graph from one or more objects as a subject",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			req := service.TraverseRequest{}
			for _, a := range args {
				id, err := uuid.Parse(a)
				if err != nil {
					return fmt.Errorf("invalid object id %q: %w", a, err)
				}
				req.Start = append(req.Start, id)
			}
			req.Steps, _ = cmd.Flags().GetInt("steps")
			req.Direction, _ = cmd.Flags().GetString("direction")
			req.FactTypes, _ = cmd.Flags().GetStringSlice("type")
			req.IncludeRetracted, _ = cmd.Flags().GetBool("include-retracted")
			req.Limit, _ = cmd.Flags().GetInt("limit")
			return runTraverse(cmd.Context(), cfg, subjectFlag(cmd), req, outputFlags(cmd))
		},
	}
	addSubjectFlag(traverseCmd)
	addOutputFlags(traverseCmd)
	traverseCmd.Flags().Int("steps", 1, "number of hops")
	traverseCmd.Flags().String("direction", graph.Both.String(), "in, out or both")
	traverseCmd.Flags().StringSlice("type", nil, "only follow facts of these types")
	traverseCmd.Flags().Bool("include-retracted", false, "include retracted edges")
	traverseCmd.Flags().Int("limit", 0, "maximum number of edges")
	rootCmd.AddCommand(traverseCmd)

	pathCmd := &cobra.Command{
		Use:   "path <from-id> <to-id>",
		Short: "Find the shortest visible path between two objects",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			var req service.PathRequest
			if req.From, err = uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("invalid object id %q: %w", args[0], err)
			}
			if req.To, err = uuid.Parse(args[1]); err != nil {
				return fmt.Errorf("invalid object id %q: %w", args[1], err)
			}
			req.MaxDepth, _ = cmd.Flags().GetInt("max-depth")
			req.FactTypes, _ = cmd.Flags().GetStringSlice("type")
			req.IncludeRetracted, _ = cmd.Flags().GetBool("include-retracted")
			return runPath(cmd.Context(), cfg, subjectFlag(cmd), req, outputFlags(cmd))
		},
	}
	addSubjectFlag(pathCmd)
	addOutputFlags(pathCmd)
	pathCmd.Flags().Int("max-depth", service.DefaultPathDepth, "maximum path length")
	pathCmd.Flags().StringSlice("type", nil, "only follow facts of these types")
	pathCmd.Flags().Bool("include-retracted", false, "walk retracted edges")
	rootCmd.AddCommand(pathCmd)

	retractedCmd := &cobra.Command{
		Use:   "retracted <fact-id>",
		Short: "Report whether a fact is retracted for a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid fact id %q: %w", args[0], err)
			}
			return runRetracted(cmd.Context(), cfg, subjectFlag(cmd), id)
		},
	}
	addSubjectFlag(retractedCmd)
	rootCmd.AddCommand(retractedCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func addSubjectFlag(cmd *cobra.Command) {
	cmd.Flags().String("subject", "", "subject id to evaluate access as")
	_ = cmd.MarkFlagRequired("subject")
}

func subjectFlag(cmd *cobra.Command) uuid.UUID {
	raw, _ := cmd.Flags().GetString("subject")
	id, err := uuid.Parse(raw)
	if err != nil {
		// Unknown subjects are rejected by the access controller.
		return uuid.Nil
	}
	return id
}

type output struct {
	format  string
	file    string
	cluster bool
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "json", "output format: json or d3")
	cmd.Flags().StringP("output", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().Bool("cluster", false, "group d3 nodes by community")
}

func outputFlags(cmd *cobra.Command) output {
	var out output
	out.format, _ = cmd.Flags().GetString("format")
	out.file, _ = cmd.Flags().GetString("output")
	out.cluster, _ = cmd.Flags().GetBool("cluster")
	return out
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.NewServer(a.service, a.graphs, slog.Default())
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func runImport(ctx context.Context, cfg *config.Config, path string) error {
	cfg.Store.ReadOnly = false
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	start := time.Now()
	stats, err := ingest.Run(ctx, st, path, ingest.Options{RetractionType: cfg.Retraction.FactType})
	if err != nil {
		return err
	}
	slog.Info("import finished", "duration", time.Since(start), "objects", stats.Objects, "facts", stats.Facts, "retracted", stats.Retracted)
	return printJSON(stats)
}

func runTraverse(ctx context.Context, cfg *config.Config, subject uuid.UUID, req service.TraverseRequest, out output) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.Traverse(ctx, subject, req)
	if err != nil {
		return err
	}
	return writeResult(result, out)
}

func runPath(ctx context.Context, cfg *config.Config, subject uuid.UUID, req service.PathRequest, out output) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.FindShortestPath(ctx, subject, req)
	if err != nil {
		return err
	}
	if len(result.Edges) == 0 {
		slog.Info("no path found", "from", req.From, "to", req.To)
	}
	return writeResult(result, out)
}

func writeResult(result *service.TraverseResult, out output) error {
	var v any
	switch out.format {
	case "", "json":
		v = result
	case "d3":
		g := export.FromTraversal(result)
		if out.cluster {
			export.ApplyClusters(g, export.DetectCommunities(g, 1))
		}
		if out.file != "" {
			return export.SaveD3Graph(g, out.file)
		}
		v = g
	default:
		return fmt.Errorf("unknown output format %q", out.format)
	}
	if out.file != "" {
		f, err := os.Create(out.file)
		if err != nil {
			return err
		}
		defer f.Close()
		return encodeJSON(f, v)
	}
	return printJSON(v)
}

func runRetracted(ctx context.Context, cfg *config.Config, subject, factID uuid.UUID) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	retracted, err := a.service.IsRetracted(ctx, subject, factID)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"factId": factID, "retracted": retracted})
}

func printJSON(v any) error {
	return encodeJSON(os.Stdout, v)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
