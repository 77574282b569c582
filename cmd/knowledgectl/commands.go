package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/jewelry-assistant/internal/catalog"
	"github.com/suPer8Hu/jewelry-assistant/internal/config"
	"github.com/suPer8Hu/jewelry-assistant/internal/db"
	"github.com/suPer8Hu/jewelry-assistant/internal/httpapi/middleware"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"github.com/suPer8Hu/jewelry-assistant/internal/knowledge"
	"github.com/suPer8Hu/jewelry-assistant/internal/logging"
	"github.com/suPer8Hu/jewelry-assistant/internal/store/rabbitmq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type app struct {
	cfg   config.Config
	dsn   string
	debug bool
}

func (a *app) openDB() (*gorm.DB, error) {
	gdb, err := db.Open(a.dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

func (a *app) logger() *zap.Logger {
	l, err := logging.New(a.debug)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (a *app) knowledge() (*knowledge.Service, error) {
	gdb, err := a.openDB()
	if err != nil {
		return nil, err
	}
	return knowledge.NewService(knowledge.NewRepo(gdb), a.logger()), nil
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Load()}

	root := &cobra.Command{
		Use:           "knowledgectl",
		Short:         "Curate the assistant knowledge base and image jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.dsn, "dsn", a.cfg.DBDSN, "database DSN (mysql, or sqlite:<path>)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", a.cfg.Debug, "development logging")

	root.AddCommand(
		newSeedCmd(a),
		newProductsCmd(a),
		newWatchCmd(a),
		newListCmd(a),
		newAddCmd(a),
		newDeactivateCmd(a),
		newReconcileCmd(a),
		newTokenCmd(a),
	)
	return root
}

func newSeedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert entries from a YAML seed file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.knowledge()
			if err != nil {
				return err
			}
			rep, err := svc.SyncSeedFile(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, updated %d\n", rep.Created, rep.Updated)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", a.cfg.KnowledgeSeedPath, "seed file")
	_ = cmd.MarkFlagFilename("file", "yaml", "yml")
	return cmd
}

func newProductsCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Upsert catalog products from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := catalog.LoadSeedFile(file)
			if err != nil {
				return err
			}
			gdb, err := a.openDB()
			if err != nil {
				return err
			}
			if err := catalog.NewRepo(gdb).Upsert(cmd.Context(), products); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d products\n", len(products))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "data/products.yaml", "product seed file")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Seed once, then re-sync whenever the seed file changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.knowledge()
			if err != nil {
				return err
			}
			if _, err := svc.SyncSeedFile(cmd.Context(), file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", file)
			return svc.WatchSeed(cmd.Context(), file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", a.cfg.KnowledgeSeedPath, "seed file")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		category   string
		inactive   bool
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List knowledge entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.knowledge()
			if err != nil {
				return err
			}
			active := !inactive
			entries, total, err := svc.List(cmd.Context(), knowledge.ListFilter{
				Category: knowledge.Category(category),
				IsActive: &active,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"entries": entries, "total": total})
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tPRIORITY\tUSAGE\tTITLE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", e.ID, e.Category, e.Priority, e.UsageCount, e.Title)
			}
			fmt.Fprintf(w, "(%d of %d)\n", len(entries), total)
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "filter by category")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "list deactivated entries instead")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "max entries")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "output as JSON")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var in knowledge.NewEntry
	var category string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a curated knowledge entry",
		Example: `  knowledgectl add -c jewelry-care -t "Cleaning lab diamonds" \
    --content "Soak in warm soapy water, brush gently." -k clean -k care`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.knowledge()
			if err != nil {
				return err
			}
			in.Category = knowledge.Category(category)
			e, err := svc.Add(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "knowledge category")
	cmd.Flags().StringVarP(&in.Title, "title", "t", "", "entry title")
	cmd.Flags().StringVar(&in.Content, "content", "", "entry content")
	cmd.Flags().StringSliceVarP(&in.Keywords, "keyword", "k", nil, "keyword (repeatable)")
	cmd.Flags().IntVarP(&in.Priority, "priority", "p", 0, "ranking priority")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newDeactivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Hide an entry from retrieval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.knowledge()
			if err != nil {
				return err
			}
			if err := svc.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
			return nil
		},
	}
}

func newReconcileCmd(a *app) *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fail stuck image jobs and re-enqueue lost ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gdb, err := a.openDB()
			if err != nil {
				return err
			}
			pub, err := rabbitmq.NewPublisher(a.cfg.RabbitURL, a.cfg.RabbitQueue)
			if err != nil {
				return fmt.Errorf("rabbitmq: %w", err)
			}
			defer pub.Close()

			m := imagegen.NewManager(imagegen.NewGormStore(gdb), pub, nil, imagegen.Options{Logger: a.logger()})
			rep, err := m.Reconcile(cmd.Context(), staleAfter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d, requeued %d\n", rep.Failed, rep.Requeued)
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", a.cfg.ImageStaleAfter, "age after which a job counts as stuck")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		email string
		role  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token for the curation API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tok, err := middleware.SignAdminToken(email, role, a.cfg.AdminJWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "admin@jewelry.com", "admin email")
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "admin or super-admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
