package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/derickschaefer/pricetrack/internal/config"
	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage pricetrack configuration",
	Long: `Read and write pricetrack configuration stored in config.json or config.yaml.

Every key can also be set through the environment as PRICETRACK_<KEY>
(for example PRICETRACK_DB_PATH), or in a .env file in the working directory.`,
}

var configInitYAML bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config file in the current directory",
	Example: `  pricetrack config init
  pricetrack config init --yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if configInitYAML {
			path = config.DefaultYAMLConfigFile
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		cfg := deps.Config

		format := resolveFormat(cfg.Format, "")
		if format == render.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}
		price := cfg.PriceColumn
		if price == "" {
			price = "(auto: usdprice, price)"
		}
		tbl := &render.Table{
			Headers: []string{"KEY", "VALUE"},
			Rows: [][]string{
				{"default_format", cfg.Format},
				{"timeout", cfg.Timeout.String()},
				{"concurrency", strconv.Itoa(cfg.Concurrency)},
				{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
				{"base_url", cfg.BaseURL},
				{"index_dataset", cfg.IndexDataset},
				{"db_path", cfg.DBPath},
				{"date_threshold", strconv.FormatFloat(cfg.DateThreshold, 'f', -1, 64)},
				{"market_threshold", strconv.FormatFloat(cfg.MarketThreshold, 'f', -1, 64)},
				{"fill_method", cfg.FillMethod},
				{"overall_label", cfg.OverallLabel},
				{"price_column", price},
				{"config_file", src},
			},
		}
		return emit(cmd, deps, newResult(model.KindTable, "config get", tbl, len(tbl.Rows), nil, time.Now()), format)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the config file",
	Example: `  pricetrack config set fill_method none
  pricetrack config set market_threshold 0.8`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		val := args[1]

		f, path, err := loadConfigFile()
		if err != nil {
			return err
		}
		if err := setConfigKey(&f, key, val); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

// setConfigKey assigns val to the File field named key.
func setConfigKey(f *config.File, key, val string) error {
	parseFloat := func() (float64, error) {
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, &model.ConfigError{Field: key, Reason: "must be a number"}
		}
		return v, nil
	}
	var err error
	switch key {
	case "default_format", "format":
		f.DefaultFormat = val
	case "timeout":
		if _, perr := time.ParseDuration(val); perr != nil {
			return &model.ConfigError{Field: key, Reason: perr.Error()}
		}
		f.Timeout = val
	case "concurrency":
		n, perr := strconv.Atoi(val)
		if perr != nil {
			return &model.ConfigError{Field: key, Reason: "must be an integer"}
		}
		f.Concurrency = n
	case "rate":
		f.Rate, err = parseFloat()
	case "base_url":
		f.BaseURL = val
	case "index_dataset":
		f.IndexDataset = val
	case "db_path":
		f.DBPath = val
	case "date_threshold":
		f.DateThreshold, err = parseFloat()
	case "market_threshold":
		f.MarketThreshold, err = parseFloat()
	case "fill_method":
		f.FillMethod = val
	case "overall_label":
		f.OverallLabel = val
	case "price_column":
		f.PriceColumn = val
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: default_format, timeout, concurrency, rate, base_url, index_dataset, db_path, date_threshold, market_threshold, fill_method, overall_label, price_column", key)
	}
	return err
}

// loadConfigFile reads config.json, or config.yaml, from cwd. When neither
// exists it returns the template and the default JSON path.
func loadConfigFile() (config.File, string, error) {
	for _, path := range []string{config.DefaultConfigFile, config.DefaultYAMLConfigFile} {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return config.File{}, "", err
		}
		var f config.File
		if strings.HasSuffix(path, ".json") {
			err = json.Unmarshal(data, &f)
		} else {
			err = yaml.Unmarshal(data, &f)
		}
		if err != nil {
			return config.File{}, "", fmt.Errorf("parsing %s: %w", path, err)
		}
		return f, path, nil
	}
	return config.Template(), config.DefaultConfigFile, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configInitYAML, "yaml", false, "write config.yaml instead of config.json")
}
