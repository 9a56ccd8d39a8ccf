package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pricetrack/internal/model"
	"github.com/derickschaefer/pricetrack/internal/pipeline"
	"github.com/derickschaefer/pricetrack/internal/render"
	"github.com/derickschaefer/pricetrack/internal/store"
)

// Version is the release string. Tagged builds set it with:
//
//	go build -ldflags "-X github.com/derickschaefer/pricetrack/cmd.Version=v0.2.0"
var Version = "v0.1.0"

// BuildTime is optionally injected next to Version with
// -X github.com/derickschaefer/pricetrack/cmd.BuildTime=<RFC3339>.
var BuildTime = ""

// versionInfo is what `version` reports. StoreSchema lets a user tell whether
// an existing database was written by a compatible build.
type versionInfo struct {
	Version     string   `json:"version"`
	GoVersion   string   `json:"go_version"`
	Platform    string   `json:"platform"`
	BuildTime   string   `json:"build_time,omitempty"`
	StoreSchema int      `json:"store_schema"`
	Stages      []string `json:"stages"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:     Version,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		BuildTime:   BuildTime,
		StoreSchema: store.SchemaVersion,
		Stages: []string{
			pipeline.StageDedup, pipeline.StageFilter, pipeline.StageFill,
			pipeline.StageIndex, pipeline.StageOverall, pipeline.StageMomentum,
		},
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pricetrack version and build information",
	Long: `Print the pricetrack version, build metadata, the store schema version
this build reads and writes, and the pipeline stages in execution order.

Default output is plain text, one value per line. Every --format is
accepted; json and jsonl emit a single object.`,
	Example: `  pricetrack version
  pricetrack version --format json | jq .version`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersion()
		out := cmd.OutOrStdout()

		switch globalFlags.Format {
		case "", "text":
			fmt.Fprintf(out, "pricetrack %s\n", info.Version)
			fmt.Fprintf(out, "go         %s\n", info.GoVersion)
			fmt.Fprintf(out, "os         %s\n", info.Platform)
			if info.BuildTime != "" {
				fmt.Fprintf(out, "built      %s\n", info.BuildTime)
			}
			fmt.Fprintf(out, "store      schema v%d\n", info.StoreSchema)
			fmt.Fprintf(out, "stages     %s\n", strings.Join(info.Stages, " → "))
			return nil
		case render.FormatJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case render.FormatJSONL:
			return json.NewEncoder(out).Encode(info)
		}

		tbl := &render.Table{
			Headers: []string{"KEY", "VALUE"},
			Rows: [][]string{
				{"version", info.Version},
				{"go_version", info.GoVersion},
				{"platform", info.Platform},
				{"build_time", info.BuildTime},
				{"store_schema", strconv.Itoa(info.StoreSchema)},
				{"stages", strings.Join(info.Stages, ",")},
			},
		}
		w, closeFn, err := outputWriter(out)
		if err != nil {
			return err
		}
		res := newResult(model.KindTable, "version", tbl, len(tbl.Rows), nil, time.Now())
		if err := render.Render(w, res, globalFlags.Format); err != nil {
			closeFn()
			return err
		}
		return closeFn()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
