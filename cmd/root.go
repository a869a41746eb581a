package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "internship-matcher"

	defaultMetro       = "Dallas"
	defaultMaxPerQuery = 120
	defaultMinEvals    = 200
	defaultMinApproved = 8
	defaultTop         = 25
	defaultCacheDir    = ".cache_llm_matcher"
)

type Config struct {
	Search *SearchConfig `mapstructure:"search"`
	Gate   *GateConfig   `mapstructure:"gate"`
	AI     *AIConfig     `mapstructure:"ai"`
	Cache  *CacheConfig  `mapstructure:"cache"`
	Run    *RunConfig    `mapstructure:"run"`
}

type SearchConfig struct {
	Metro       string `mapstructure:"metro"`
	MaxPerQuery int    `mapstructure:"max-per-query"`
}

// GateConfig overrides the location gate's built-in rule lists. Empty lists
// keep the defaults.
type GateConfig struct {
	MetroAliases      []string `mapstructure:"metro-aliases"`
	RemoteMarkers     []string `mapstructure:"remote-markers"`
	NationwideMarkers []string `mapstructure:"nationwide-markers"`
	DenyLocales       []string `mapstructure:"deny-locales"`
	DenyStateCodes    []string `mapstructure:"deny-state-codes"`
}

type AIConfig struct {
	Gemini *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

type RunConfig struct {
	MinEvals    int `mapstructure:"min-evals"`
	MinApproved int `mapstructure:"min-approved"`
	Top         int `mapstructure:"top"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "internship-matcher finds and ranks internship postings matching a resume",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is "+app+".yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config is only needed for the run command; all keys have defaults.
	if runCmd.CalledAs() == "" {
		return
	}

	loadConfigFile()
}

func loadConfigFile() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		// SetConfigName wants the base name; viper appends the extension.
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// A run without a config file uses defaults; an unparseable file
		// is still fatal.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Search == nil {
		c.Search = &SearchConfig{}
	}
	if c.Search.Metro == "" {
		c.Search.Metro = defaultMetro
	}
	if c.Search.MaxPerQuery <= 0 {
		c.Search.MaxPerQuery = defaultMaxPerQuery
	}

	if c.Gate == nil {
		c.Gate = &GateConfig{}
	}
	if c.AI == nil {
		c.AI = &AIConfig{}
	}
	if c.AI.Gemini == nil {
		c.AI.Gemini = &GeminiConfig{}
	}

	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaultCacheDir
	}

	if c.Run == nil {
		c.Run = &RunConfig{}
	}
	if c.Run.MinEvals <= 0 {
		c.Run.MinEvals = defaultMinEvals
	}
	if c.Run.MinApproved <= 0 {
		c.Run.MinApproved = defaultMinApproved
	}
	if c.Run.Top <= 0 {
		c.Run.Top = defaultTop
	}
}
