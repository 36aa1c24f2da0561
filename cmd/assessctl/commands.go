package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adhd-assessment-server/internal/config"
	"github.com/adhd-assessment-server/internal/database"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/heatmap"
	"github.com/adhd-assessment-server/internal/ingestion"
	"github.com/adhd-assessment-server/internal/report"
	"github.com/adhd-assessment-server/internal/review"
	"github.com/adhd-assessment-server/internal/service"
)

func validateEEGCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-eeg FILE",
		Short: "Check an EEG sample for all 19 channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channels, err := parseEEGFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: valid (%d channels)\n", args[0], len(channels))
			for _, cv := range channels.Ordered() {
				fmt.Fprintf(out, "  %-4s %10.3f\n", cv.Channel, cv.Value)
			}
			return nil
		},
	}
}

func scoreCmd(opts *rootOptions) *cobra.Command {
	var (
		prediction  string
		answersPath string
		confidence  float64
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score questionnaire answers against a predicted label",
		RunE: func(cmd *cobra.Command, args []string) error {
			answers := domain.QuestionnaireAnswers{}
			if answersPath != "" {
				var err error
				if answers, err = loadAnswers(answersPath); err != nil {
					return err
				}
			}
			var conf *float64
			if cmd.Flags().Changed("confidence") {
				conf = &confidence
			}

			eval := service.NewScoringEngine().Evaluate(prediction, answers, conf)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(eval)
			}

			fmt.Fprintf(out, "Prediction: %s\nRisk level: %s\n", eval.Prediction, eval.RiskLevel.Title())
			for _, g := range service.SymptomGroups {
				fmt.Fprintf(out, "  %-14s %5.1f%%\n", g, eval.SubScores.Get(g)*100)
			}
			fmt.Fprintln(out, "Recommendations:")
			for i, r := range eval.Recommendations {
				fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, r.Category.Label(), r.Text())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prediction, "prediction", domain.LabelADHD, "predicted label")
	cmd.Flags().StringVar(&answersPath, "answers", "", "JSON or YAML file mapping question number to answer (1-5)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "classifier confidence as a percentage")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the evaluation as JSON")
	return cmd
}

func heatmapCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "heatmap FILE",
		Short: "Render a scalp heatmap PNG for an EEG sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channels, err := parseEEGFile(args[0])
			if err != nil {
				return err
			}
			h := heatmap.Build(channels)
			if err := writeFile(output, func(w io.Writer) error { return heatmap.RenderPNG(w, h) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (range %.2f to %.2f)\n", output, h.Min, h.Max)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "heatmap.png", "output PNG path")
	return cmd
}

// reportInput is the offline report description. EEGFile is resolved
// relative to the input file.
type reportInput struct {
	UserInfo domain.UserInfo         `json:"user_info"`
	Result   domain.AssessmentResult `json:"result"`
	Answers  map[string]int          `json:"answers"`
	EEG      domain.ChannelMap       `json:"eeg"`
	EEGFile  string                  `json:"eeg_file"`
}

func reportCmd(opts *rootOptions) *cobra.Command {
	var (
		inputPath string
		output    string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a PDF or HTML report from a completed assessment file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in reportInput
			if err := decodeStructuredFile(inputPath, &in); err != nil {
				return err
			}
			if strings.TrimSpace(in.Result.Prediction) == "" {
				return fmt.Errorf("%s: result.prediction is required", inputPath)
			}
			answers, err := domain.ParseAnswers(in.Answers)
			if err != nil {
				return err
			}
			eeg := in.EEG
			if in.EEGFile != "" {
				path := in.EEGFile
				if !filepath.IsAbs(path) {
					path = filepath.Join(filepath.Dir(inputPath), path)
				}
				if eeg, err = parseEEGFile(path); err != nil {
					return err
				}
			} else if len(eeg) > 0 {
				if eeg, err = ingestion.Validate(channelsToRaw(eeg)); err != nil {
					return err
				}
			}

			generated := time.Now().UTC()
			ri := service.BuildReportInput(service.NewScoringEngine(), in.UserInfo, in.Result, answers, eeg, generated)

			var render func(io.Writer) error
			switch format {
			case "pdf":
				if output == "" {
					output = report.Filename(in.UserInfo.PatientID, generated)
				}
				render = func(w io.Writer) error { return report.NewPDFRenderer().Render(w, ri) }
			case "html":
				if output == "" {
					output = strings.TrimSuffix(report.Filename(in.UserInfo.PatientID, generated), ".pdf") + ".html"
				}
				render = func(w io.Writer) error { return report.NewHTMLRenderer().Render(w, ri) }
			default:
				return fmt.Errorf("unknown report format %q (expected pdf or html)", format)
			}

			if err := writeFile(output, render); err != nil {
				return err
			}
			opts.logger().WithField("output", output).Info("Report written")
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "assessment file (JSON or YAML)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (defaults to the report filename)")
	cmd.Flags().StringVar(&format, "format", "pdf", "report format: pdf or html")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func migrateCmd(opts *rootOptions) *cobra.Command {
	var (
		databaseURL string
		path        string
		down        bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the postgres review schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url is required")
			}
			logger := opts.logger()
			runner, err := database.NewMigrationRunner(databaseURL, path, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			ctx := cmd.Context()
			if down {
				err = runner.Down(ctx)
			} else {
				err = runner.Up(ctx)
			}
			if err != nil {
				return err
			}
			version, dirty, err := runner.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
	cmd.Flags().StringVar(&path, "path", "internal/database/migrations", "migrations directory")
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	return cmd
}

func reviewsCmd(opts *rootOptions) *cobra.Command {
	var driver, sqlitePath, postgresURL string

	open := func(ctx context.Context) (review.Store, error) {
		cfgManager, err := config.NewManager()
		if err != nil {
			return nil, err
		}
		rc := cfgManager.GetConfig().Review
		if driver != "" {
			rc.Driver = driver
		}
		if sqlitePath != "" {
			rc.SQLitePath = sqlitePath
		}
		if postgresURL != "" {
			rc.PostgresURL = postgresURL
		}
		return review.Open(ctx, rc, opts.logger())
	}

	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Inspect, export or import clinician reviews",
	}
	cmd.PersistentFlags().StringVar(&driver, "driver", "", "review store driver (sqlite or postgres)")
	cmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "", "sqlite database path")
	cmd.PersistentFlags().StringVar(&postgresURL, "postgres-url", "", "postgres connection URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show the clinician agreement rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reviews: %d\nAgreed: %d\nAgreement rate: %.1f%%\n",
				stats.Total, stats.Agreed, stats.AgreementRate*100)
			return nil
		},
	})

	var exportPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every review as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			if exportPath == "" || exportPath == "-" {
				return store.ExportJSON(cmd.Context(), cmd.OutOrStdout())
			}
			return writeFile(exportPath, func(w io.Writer) error { return store.ExportJSON(cmd.Context(), w) })
		},
	}
	export.Flags().StringVarP(&exportPath, "output", "o", "-", "output file, - for stdout")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Load reviews from an export, skipping sessions already reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			imported, skipped, err := store.ImportJSON(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d reviews (%d skipped)\n", imported, skipped)
			return nil
		},
	})
	return cmd
}

func parseEEGFile(path string) (domain.ChannelMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ingestion.NewParser(0).ParseReader(filepath.Base(path), f)
}

func loadAnswers(path string) (domain.QuestionnaireAnswers, error) {
	var raw map[string]int
	if err := decodeStructuredFile(path, &raw); err != nil {
		return nil, err
	}
	return domain.ParseAnswers(raw)
}

func channelsToRaw(m domain.ChannelMap) map[string]interface{} {
	raw := make(map[string]interface{}, len(m))
	for k, v := range m {
		raw[k] = v
	}
	return raw
}

// decodeStructuredFile reads JSON, or YAML converted through JSON so the
// json struct tags apply to both.
func decodeStructuredFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if data, err = json.Marshal(stringKeys(doc)); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// stringKeys rewrites YAML mappings with non-string keys, e.g. question numbers
func stringKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = stringKeys(val)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = stringKeys(val)
		}
		return t
	}
	return v
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
