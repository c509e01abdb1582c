package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nutrimama/nutrimama/internal/buildconfig"
	"github.com/nutrimama/nutrimama/internal/config"
	"github.com/nutrimama/nutrimama/internal/domain"
	"github.com/nutrimama/nutrimama/internal/knowledge"
	"github.com/nutrimama/nutrimama/internal/service"
	"github.com/nutrimama/nutrimama/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cli holds the flags and the engine shared by every subcommand.
type cli struct {
	backend    string
	dbPath     string
	passphrase string
	knowledge  string
	verbose    bool

	logger *zap.Logger
	store  *store.Backend
	engine *service.Engine
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "nutrictl",
		Short: "Inspect and drive the maternal nutrition decision engine",
		Long: `nutrictl runs the same engine as the HTTP server against a profile
store, one operation per invocation. The local backend keeps profiles in an
encrypted SQLite file.

Example:
  nutrictl signal amara nutrition.iron 0.3 --weight 1
  nutrictl decide amara`,
		SilenceUsage:      true,
		PersistentPreRunE: c.open,
		PersistentPostRun: func(cmd *cobra.Command, args []string) { c.close() },
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.backend, "backend", config.StorageBackend(), "storage backend: local, postgres or memory")
	pf.StringVar(&c.dbPath, "db", config.LocalDBPath(), "path of the local database")
	pf.StringVar(&c.passphrase, "passphrase", config.LocalPassphrase(), "passphrase of the local database")
	pf.StringVar(&c.knowledge, "knowledge", config.KnowledgePath(), "YAML file replacing the built-in knowledge base")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		c.decideCmd(),
		c.signalCmd(),
		c.symptomCmd(),
		c.profileCmd(),
		c.avoidCmd(),
		c.recordCmd(),
		c.feedbackCmd(),
		c.summaryCmd(),
		c.insightsCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if c.verbose {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.logger = logger

	c.store, err = store.Open(cmd.Context(), store.OpenOptions{
		Backend:     c.backend,
		DatabaseURL: config.DatabaseURL(),
		LocalPath:   c.dbPath,
		Passphrase:  c.passphrase,
	})
	if err != nil {
		return err
	}

	kb := knowledge.Default()
	if c.knowledge != "" {
		if kb, err = knowledge.Load(c.knowledge); err != nil {
			return err
		}
	}
	c.engine = service.NewEngine(c.store.Profiles, kb, service.SettingsFromEnv(), c.logger)
	return nil
}

func (c *cli) close() {
	if c.store != nil {
		c.store.Close()
		c.store = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) decideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decide [user]",
		Short: "Run one decision cycle and print the decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.engine.Decide(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, d)
		},
	}
}

func (c *cli) signalCmd() *cobra.Command {
	var weight float64
	cmd := &cobra.Command{
		Use:   "signal [user] [field] [value]",
		Short: "Fold an observation into a belief field",
		Long: `Fields are nutrition.<nutrient>, confidence.<nutrient>, a bare nutrient
(same as nutrition.<nutrient>), energy_level, sleep_quality, hydration_level
or stress_level.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("%w: value %q is not a number", domain.ErrValidation, args[2])
			}
			return c.engine.ApplySignal(cmd.Context(), args[0], args[1], value, weight)
		},
	}
	cmd.Flags().Float64Var(&weight, "weight", 0, "dampening weight in [0,1], 0 uses the configured default")
	return cmd
}

func (c *cli) symptomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symptom [user] [symptom...]",
		Short: "Report one or more symptoms",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.Perception{Symptoms: args[1:]}
			res, err := c.engine.ApplyPerception(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func (c *cli) profileCmd() *cobra.Command {
	var (
		stage         string
		breastfeeding bool
		age           int
	)
	cmd := &cobra.Command{
		Use:   "profile [user]",
		Short: "Set life stage, breastfeeding and age",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.engine.SetProfile(cmd.Context(), args[0], domain.Stage(stage), breastfeeding, age)
		},
	}
	cmd.Flags().StringVar(&stage, "stage", string(domain.StagePregnant), "planning, pregnant or breastfeeding")
	cmd.Flags().BoolVar(&breastfeeding, "breastfeeding", false, "currently breastfeeding")
	cmd.Flags().IntVar(&age, "age", 0, "age in years, 0 leaves it unchanged")
	return cmd
}

func (c *cli) avoidCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "avoid [user] [food]",
		Short: "Mark a food as an allergy, dislike or contraindication",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch kind {
			case "allergy":
				return c.engine.AddAllergy(cmd.Context(), args[0], args[1])
			case "dislike":
				return c.engine.AddDislike(cmd.Context(), args[0], args[1])
			case "contraindication":
				return c.engine.AddContraindication(cmd.Context(), args[0], args[1])
			}
			return fmt.Errorf("%w: unknown kind %q", domain.ErrValidation, kind)
		},
	}
	cmd.Flags().StringVar(&kind, "as", "dislike", "allergy, dislike or contraindication")
	return cmd
}

func (c *cli) recordCmd() *cobra.Command {
	var (
		food      string
		nutrients []string
		text      string
		reason    string
	)
	cmd := &cobra.Command{
		Use:   "record [user]",
		Short: "Record a food suggestion made outside the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := domain.Action{
				ActionType: domain.ActionSuggestFood,
				ActionText: text,
				Reason:     reason,
				Food:       domain.FoodID(food),
			}
			for _, n := range nutrients {
				a.NutrientsTargeted = append(a.NutrientsTargeted, domain.NutrientID(strings.TrimSpace(n)))
			}
			id, err := c.engine.RecordAction(cmd.Context(), args[0], a)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&food, "food", "", "suggested food")
	cmd.Flags().StringSliceVar(&nutrients, "nutrients", nil, "targeted nutrients, comma separated")
	cmd.Flags().StringVar(&text, "text", "", "suggestion shown to the user")
	cmd.Flags().StringVar(&reason, "reason", "", "why it was suggested")
	_ = cmd.MarkFlagRequired("food")
	_ = cmd.MarkFlagRequired("nutrients")
	return cmd
}

func (c *cli) feedbackCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "feedback [user] [action-id] [positive|negative|neutral]",
		Short: "Record the outcome of a suggestion",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("%w: invalid action id %q", domain.ErrValidation, args[1])
			}
			return c.engine.LearnFromOutcome(cmd.Context(), args[0], id, domain.Outcome(args[2]), text)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "what the user said")
	return cmd
}

func (c *cli) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary [user]",
		Short: "Print the current belief state and recent actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := c.engine.GetStateSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
}

func (c *cli) insightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insights [user]",
		Short: "Print outcome counts and learned food patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := c.engine.Insights(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, in)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), buildconfig.UserAgent())
			return nil
		},
	}
}
