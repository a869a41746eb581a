package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"internship-matcher/internal/board"
	"internship-matcher/internal/cache"
	"internship-matcher/internal/llm"
	"internship-matcher/internal/llm/gemini"
	"internship-matcher/internal/locgate"
	logutil "internship-matcher/internal/logger"
	"internship-matcher/internal/report"
	"internship-matcher/internal/resume"
	runctl "internship-matcher/internal/run"
	"internship-matcher/internal/secrets"
)

var runCmd = &cobra.Command{
	Use:   "run [resume file]",
	Short: "Run the matching pipeline for a resume",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("resume", "", "path to the resume file (.pdf, .docx or .txt)")
	runCmd.Flags().Int("min-evals", defaultMinEvals, "maximum job evaluations before giving up")
	runCmd.Flags().Int("min-approved", defaultMinApproved, "approvals target that ends the search")
	runCmd.Flags().Int("top", defaultTop, "number of results to display")

	viper.BindPFlag("run.min-evals", runCmd.Flags().Lookup("min-evals"))
	viper.BindPFlag("run.min-approved", runCmd.Flags().Lookup("min-approved"))
	viper.BindPFlag("run.top", runCmd.Flags().Lookup("top"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	logger, err := logutil.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	resumePath, err := resolveResumePath(cmd, args)
	if err != nil {
		logger.Fatal("no resume to process", zap.Error(err))
	}

	logger.Info("loading resume", zap.String("path", resumePath))

	resumeText, err := resume.Extract(resumePath)
	if err != nil {
		logger.Fatal("extracting resume text", zap.Error(err))
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.AI.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		logger.Fatal(
			"loading gemini api key",
			zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY, GEMINI_API_KEY_FILE or the ai.gemini.api-key-file config key"),
		)
	}

	store, err := cache.NewFileCache(config.Cache.Dir)
	if err != nil {
		logger.Fatal("opening the llm cache", zap.Error(err))
	}

	// One writer per cache directory. A second concurrent run would race the
	// entry writes, so it refuses to start instead.
	lock := flock.New(filepath.Join(store.Dir(), ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		logger.Fatal("locking the cache directory", zap.Error(err))
	}
	if !locked {
		logger.Fatal("another run is already using the cache directory", zap.String("dir", store.Dir()))
	}
	defer lock.Unlock()

	generator, err := gemini.NewGenerator(ctx, apiKey, config.AI.Gemini.Model)
	if err != nil {
		logger.Fatal("creating the gemini client", zap.Error(err))
	}

	gateway := llm.NewGateway(generator, store, config.AI.Gemini.MaxRetries,
		logutil.WithModel(logger, generator.Model()))

	logger.Info("extracting candidate profile", zap.String("llm_model", generator.Model()))

	profile, err := gateway.ExtractProfile(ctx, resumeText)
	if err != nil {
		logger.Fatal("extracting candidate profile", zap.Error(err))
	}

	logger.Info("profile ready",
		zap.Int("strength", profile.Strength),
		zap.Int("skills", len(profile.Skills)),
		zap.Strings("suggested_queries", profile.SuggestedQueries),
		zap.String("degree_level", profile.Constraints.DegreeLevel),
	)

	client := board.NewClient(logger)
	sources := []board.Source{
		board.NewLinkedIn(client, logger),
		board.NewIndeed(client, logger),
	}

	controller := runctl.NewController(
		sources,
		locgate.New(gateRules(config.Gate)),
		gateway,
		runctl.Bounds{
			MinApproved: config.Run.MinApproved,
			MaxEvals:    config.Run.MinEvals,
			MaxPerQuery: config.Search.MaxPerQuery,
		},
		config.Search.Metro,
		logger,
	)

	approvals, summary, err := controller.Run(ctx, profile)
	if err != nil {
		logger.Warn("run interrupted", zap.Error(err))
	}

	outputPath, err := report.Write(".", approvals, time.Now())
	if err != nil {
		logger.Fatal("writing results file", zap.Error(err))
	}

	displayTop(logger, approvals, config.Run.Top)

	fields := []zap.Field{
		zap.Int("queries_tried", summary.QueriesTried),
		zap.Int("discovered", summary.Discovered),
		zap.Int("location_rejected", summary.LocationRejected),
		zap.Int("degree_rejected", summary.DegreeRejected),
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("approved", summary.Approved),
		zap.Int("skipped_errors", summary.Skipped),
		zap.String("output_file", outputPath),
	}
	if summary.Approved < config.Run.MinApproved {
		fields = append(fields, zap.String("note", fmt.Sprintf(
			"found %d of target %d approvals", summary.Approved, config.Run.MinApproved)))
	}
	logger.Info("run complete", fields...)
}

// resolveResumePath picks the resume: the --resume flag, the positional
// argument, or an interactive choice among resume-like files in the working
// directory.
func resolveResumePath(cmd *cobra.Command, args []string) (string, error) {
	if flag := cmd.Flag("resume"); flag != nil && flag.Value.String() != "" {
		return flag.Value.String(), nil
	}
	if len(args) > 0 {
		return args[0], nil
	}

	candidates, err := resume.Discover(".")
	if err != nil {
		return "", fmt.Errorf("scanning working directory for resumes: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no resume given and none found in the working directory")
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	prompt := promptui.Select{
		Label: "Choose a resume",
		Items: candidates,
	}
	_, selected, err := prompt.Run()
	if err != nil {
		return "", err
	}

	return selected, nil
}

func gateRules(cfg *GateConfig) locgate.Rules {
	rules := locgate.DefaultRules()
	if len(cfg.MetroAliases) > 0 {
		rules.MetroAliases = cfg.MetroAliases
	}
	if len(cfg.RemoteMarkers) > 0 {
		rules.RemoteMarkers = cfg.RemoteMarkers
	}
	if len(cfg.NationwideMarkers) > 0 {
		rules.NationwideMarkers = cfg.NationwideMarkers
	}
	if len(cfg.DenyLocales) > 0 {
		rules.DenyLocales = cfg.DenyLocales
	}
	if len(cfg.DenyStateCodes) > 0 {
		rules.DenyStateCodes = cfg.DenyStateCodes
	}
	return rules
}

func displayTop(log *zap.Logger, approvals []*runctl.Approval, top int) {
	shown := approvals
	if len(shown) > top {
		shown = shown[:top]
	}

	for i, approval := range shown {
		log.Info(fmt.Sprintf("match #%d", i+1),
			zap.Int("score", approval.Evaluation.Score),
			zap.String("priority", approval.Evaluation.Priority),
			zap.String("title", approval.Posting.Title),
			zap.String("company", approval.Posting.Company),
			zap.String("location", approval.Posting.Location),
			zap.String("url", approval.Posting.URL),
			zap.String("reason", approval.Evaluation.Reason),
		)
	}
}
