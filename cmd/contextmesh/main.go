// Command contextmesh is the operational CLI: index documents into the
// vector store and run queries through the agent pipeline.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hupe1980/contextmesh"
	"github.com/hupe1980/contextmesh/checkpoint"
	"github.com/hupe1980/contextmesh/config"
	"github.com/hupe1980/contextmesh/core"
	"github.com/hupe1980/contextmesh/logging"
	"github.com/hupe1980/contextmesh/model"
	"github.com/hupe1980/contextmesh/model/anthropic"
	"github.com/hupe1980/contextmesh/model/openai"
	"github.com/hupe1980/contextmesh/store"
	"github.com/hupe1980/contextmesh/vector"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath string
	namespace  string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "contextmesh",
		Short:         "Multi-agent retrieval pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVarP(&opts.namespace, "namespace", "n", "default", "tenant namespace")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newIndexCmd(opts), newQueryCmd(opts))
	return cmd
}

func (o *cliOptions) load() (config.Config, logging.Logger, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return cfg, nil, err
		}
	}

	level := logging.LogLevelInfo
	if o.verbose {
		level = logging.LogLevelDebug
	}
	logger := logging.NewSlogLogger(level, "text", false)

	return cfg, logger, nil
}

func newIndexCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <file>...",
		Short: "Chunk, embed and index documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			db, err := store.Connect(cmd.Context(), cfg.Stores.PostgresDSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			embedder := openai.NewEmbedder()
			indexer := vector.NewIndexer(embedder, vector.NewPgIndex(db), func(o *vector.IndexerOptions) {
				o.Chunker = vector.NewChunker(func(co *vector.ChunkerOptions) {
					co.Size = cfg.Retrieval.ChunkSize
					co.Overlap = cfg.Retrieval.ChunkOverlap
				})
				o.Logger = logger
			})

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				chunks, tokens, err := indexer.Index(cmd.Context(), opts.namespace, path, string(content))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks, %d embedding tokens\n", path, chunks, tokens)
			}
			return nil
		},
	}
	return cmd
}

func newQueryCmd(opts *cliOptions) *cobra.Command {
	var userID, conversationID string

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run one query through the agent pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			db, err := store.Connect(cmd.Context(), cfg.Stores.PostgresDSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			router, err := model.NewRouter(
				model.Route{
					Generator: openai.NewGenerator(func(o *openai.Options) {
						if cfg.Models.Economy.Model != "" {
							o.Model = cfg.Models.Economy.Model
						}
					}),
					CostPerThousandTokens: cfg.Models.Economy.CostPerThousandTokens,
				},
				model.Route{
					Generator: anthropic.NewGenerator(anthropic.WithModelName(cfg.Models.Premium.Model)),
					CostPerThousandTokens: cfg.Models.Premium.CostPerThousandTokens,
				},
			)
			if err != nil {
				return err
			}

			index := vector.NewPgIndex(db)

			mesh, err := contextmesh.New(router, openai.NewEmbedder(), index, func(o *contextmesh.Options) {
				o.Config = cfg
				o.Keyword = index
				o.Rows = store.NewPgRowStore(db)
				o.Conversations = store.NewPgConversationStore(db)
				o.Analytics = store.NewPgAnalyticsStore(db)
				o.States = store.NewPgStateStore(db)
				o.Logger = logger
				if cfg.Stores.RedisAddr != "" {
					o.Checkpoints = checkpoint.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.Stores.RedisAddr}))
				}
			})
			if err != nil {
				return err
			}

			query := core.NewQuery(args[0], opts.namespace, userID, conversationID)
			snap, err := mesh.Run(cmd.Context(), query)
			printResult(cmd, snap)
			return err
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id for cross-turn context")
	return cmd
}

func printResult(cmd *cobra.Command, snap core.StateSnapshot) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, snap.Answer)
	if len(snap.Citations) > 0 {
		fmt.Fprintf(out, "\nSources: %s\n", strings.Join(snap.Citations, ", "))
	}
	if len(snap.SuggestedActions) > 0 {
		fmt.Fprintf(out, "Suggested: %s\n", strings.Join(snap.SuggestedActions, "; "))
	}
	if len(snap.FollowUpQuestions) > 0 {
		fmt.Fprintf(out, "Follow-ups: %s\n", strings.Join(snap.FollowUpQuestions, "; "))
	}

	var steps []string
	for _, entry := range snap.AgentTrace {
		steps = append(steps, fmt.Sprintf("%s(%s)", entry.Step, entry.Outcome))
	}
	fmt.Fprintf(out, "\nTrace: %s\n", strings.Join(steps, " -> "))
	fmt.Fprintf(out, "Status: %s  Cost: $%.6f  Tokens: %d  Latency: %s\n",
		snap.Status, snap.AccumulatedCost, snap.AccumulatedTokens, snap.AccumulatedLatency)
}
