package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/application/port"
	"github.com/garyjia/docflow/internal/config"
	"github.com/garyjia/docflow/internal/container"
	"github.com/garyjia/docflow/internal/domain/entity"
	"github.com/garyjia/docflow/internal/domain/workflow"
	"github.com/garyjia/docflow/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "docflowctl",
	Short: "Document approval administration",
	Long: `docflowctl works directly on the docflow database.
It seeds the identity directory and approval line templates, lists documents
and prints or exports monthly work schedules.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "configs/config.yaml", "config file")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting identity")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(identitiesCmd())
	rootCmd.AddCommand(documentsCmd())
	rootCmd.AddCommand(scheduleCmd())
}

// withContainer starts the application container for one command
func withContainer(ctx context.Context, fn func(context.Context, *container.Container) error) error {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      viper.GetString("log-level"),
		OutputPath: "stderr",
		Format:     "console",
		Service:    "docflowctl",
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close container", zap.Error(err))
		}
	}()
	return fn(ctx, c)
}

func actorID() (string, error) {
	id := viper.GetString("actor-id")
	if id == "" {
		return "", fmt.Errorf("--actor-id required")
	}
	return id, nil
}

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "templates", Short: "Manage approval line templates"}
	cmd.AddCommand(templatesImportCmd())
	cmd.AddCommand(templatesListCmd())
	return cmd
}

func templatesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create every template in a YAML file, owned by the actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				created, err := c.Services().Template.ImportTemplates(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(created)
				}
				printTemplates(created)
				return nil
			})
		},
	}
}

func templatesListCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				list, err := c.Services().Template.ListTemplates(ctx, entity.DocumentType(docType))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				printTemplates(list)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&docType, "type", "", "document type filter (CONTRACT, WORK_SCHEDULE)")
	return cmd
}

func printTemplates(list []*entity.ApprovalLineTemplate) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Type", "Owner", "Steps"})
	for _, t := range list {
		names := make([]string, 0, len(t.Steps))
		for _, s := range t.Steps {
			names = append(names, fmt.Sprintf("%d.%s(%s)", s.StepOrder, s.StepName, s.ApproverType))
		}
		tw.AppendRow(table.Row{t.ID, t.Name, t.DocumentType, t.OwnerID, strings.Join(names, " > ")})
	}
	tw.Render()
}

func identitiesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "identities", Short: "Manage the identity directory"}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert every identity in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				n, err := c.Services().Identity.ImportIdentities(ctx, f)
				if err != nil {
					return err
				}
				fmt.Printf("imported %d identities\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				list, err := c.Services().Identity.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Dept", "Job level", "Roles", "Active", "Signature"})
				for _, ident := range list {
					tw.AppendRow(table.Row{
						ident.ID, ident.Name, ident.DeptCode, ident.JobLevel,
						strings.Join(ident.Roles, ","), ident.Active, ident.SignatureKey != "",
					})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func documentsCmd() *cobra.Command {
	var docType, status string
	var limit int
	cmd := &cobra.Command{Use: "documents", Short: "Inspect documents"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List documents visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				docs, err := c.Services().Document.ListVisible(ctx, actor, port.DocumentFilter{
					Type:   entity.DocumentType(docType),
					Status: workflow.State(status),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(docs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Title", "Status", "Creator", "Updated"})
				for _, d := range docs {
					tw.AppendRow(table.Row{d.ID, d.Type, d.Title, d.Status, d.CreatorID, d.UpdatedAt.Format("2006-01-02 15:04")})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&docType, "type", "", "document type filter")
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	cmd.AddCommand(list)
	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "schedule", Short: "Work schedule grids"}
	cmd.AddCommand(scheduleShowCmd())
	cmd.AddCommand(scheduleExportCmd())
	return cmd
}

func scheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <document-id>",
		Short: "Print a schedule grid with its totals and pattern warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				grid, err := c.Services().Schedule.Grid(ctx, id, actor)
				if err != nil {
					return err
				}
				return writeGrid(os.Stdout, grid, viper.GetBool("json"))
			})
		},
	}
}

func scheduleExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <document-id>",
		Short: "Write a schedule as a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			return withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				schedules := c.Services().Schedule
				if output == "" {
					_, ext := schedules.ExportFormat()
					output = fmt.Sprintf("schedule-%d%s", id, ext)
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := schedules.Export(ctx, id, actor, f); err != nil {
					f.Close()
					_ = os.Remove(output)
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Println("wrote", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}

func printJSON(v any) error {
	return writeJSON(os.Stdout, v)
}
