package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragkit/internal/app"
	"ragkit/internal/metrics"
	"ragkit/internal/query"
	"ragkit/internal/schema"
	"ragkit/internal/server"
	"ragkit/internal/vectorstore"
	"ragkit/pkg/logger"
)

func newEmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed [texts...]",
		Short: "Embed texts with the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireEmbeddingCredentials(); err != nil {
				return err
			}
			texts := args
			if len(texts) == 0 {
				texts = []string{"hello", "world"}
			}

			emb, closeFn, err := app.NewEmbedder(cmd.Context(), cfg, metrics.New())
			if err != nil {
				return err
			}
			defer closeFn()

			vecs, err := emb.GetTextEmbeddingsBatch(cmd.Context(), texts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nWe have %d embeddings\n", len(vecs))
			return nil
		},
	}
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Load, chunk, embed and index a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Reader.LoadData(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := a.Index.FromDocuments(cmd.Context(), docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d documents (%d new, %d updated, %d unchanged) into %d nodes\n",
				len(docs), res.Inserted, res.Updated, res.Skipped, len(res.NodeIDs))
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	var (
		mode    string
		topK    int
		filters []string
		orMode  bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := query.Request{
				Query:          args[0],
				SimilarityTopK: topK,
				Mode:           vectorstore.QueryMode(mode),
			}
			if len(filters) > 0 {
				req.Filters = &vectorstore.MetadataFilters{Condition: vectorstore.CondAnd}
				if orMode {
					req.Filters.Condition = vectorstore.CondOr
				}
				for _, f := range filters {
					mf, err := vectorstore.ParseFilter(f)
					if err != nil {
						return err
					}
					req.Filters.Filters = append(req.Filters.Filters, mf)
				}
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Engine.Query(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResponse(cmd, resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "default", "Query mode: default, sparse, hybrid or semantic_hybrid")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of nodes to retrieve (0 uses the index default of 2)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Metadata filter key=value, repeatable")
	cmd.Flags().BoolVar(&orMode, "or", false, "Combine filters with or instead of and")
	return cmd
}

func printResponse(cmd *cobra.Command, resp *query.Response) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Answer)
	if len(resp.SourceNodes) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for _, n := range resp.SourceNodes {
		fmt.Fprintf(out, "- %s (%s) score=%.4f\n",
			metaString(n.Node.Metadata, schema.MetaFileName),
			metaString(n.Node.Metadata, schema.MetaFilePath),
			n.Score)
	}
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key]; ok {
		return fmt.Sprint(v)
	}
	return "Unknown"
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			s := server.New(a)
			errCh := make(chan error, 1)
			go func() { errCh <- s.Run() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			}

			logger.Info("shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
			defer cancel()
			return s.Shutdown(ctx)
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.Dump()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireEmbeddingCredentials(); err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg)
}
