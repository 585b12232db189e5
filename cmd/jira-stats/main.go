package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/petr-muller/jirastats/internal/config"
	"github.com/petr-muller/jirastats/internal/flagutil"
	"github.com/petr-muller/jirastats/internal/jirastats/dataset"
	"github.com/petr-muller/jirastats/internal/jirastats/issues"
	"github.com/petr-muller/jirastats/internal/jirastats/jira"
	"github.com/petr-muller/jirastats/internal/jirastats/service"
	"github.com/petr-muller/jirastats/internal/jirastats/timeline"
)

var (
	jiraOptions     flagutil.JiraOptions
	pipelineOptions flagutil.PipelineOptions

	logLevel    string
	outputPath  string
	metricsPath string

	issueFields []string
	fromFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jira-stats",
		Short: "Fetch JIRA search results and derive issue statistics",
		Long: `JIRA Stats fetches all issues matching a JQL query and derives statistics from them.
It provides three modes of operation:

1. Count: Print the number of issues matching a query
2. Issues: Print all issues matching a query
3. Stats: Reconstruct issue timelines and print status, type and user summaries`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			logrus.SetLevel(level)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if metricsPath == "" {
				return nil
			}
			if err := prometheus.WriteToTextfile(metricsPath, prometheus.DefaultGatherer); err != nil {
				return fmt.Errorf("cannot write metrics: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	jiraOptions.AddPFlags(flags)
	pipelineOptions.AddPFlags(flags)
	flags.StringVar(&logLevel, "log-level", logrus.WarnLevel.String(), "Logging level")
	flags.StringVarP(&outputPath, "output", "o", "", "Write the output to this file instead of stdout")
	flags.StringVar(&metricsPath, "metrics-file", "", "Write fetch and cache metrics in the Prometheus text format to this file")

	rootCmd.AddCommand(
		newCountCmd(),
		newIssuesCmd(),
		newStatsCmd(),
	)

	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		logrus.WithError(err).Fatal("command failed")
	}
}

func newCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <jql-query>",
		Short: "Count issues matching a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd.Context(), args[0])
		},
	}
}

func newIssuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues <jql-query>",
		Short: "Fetch all issues matching a query",
		Long: `Fetch all issues matching a query, across all result pages.
The issues are printed in the order JIRA returned them, together with their total.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIssues(cmd.Context(), args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&issueFields, "fields", "f", nil, "Fields to fetch (all fields when empty, 'changelog' includes the change history)")

	return cmd
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [jql-query]",
		Short: "Reconstruct issue timelines and summarize them",
		Long: `Fetch issues matching a query with their change history, reconstruct their timelines
and print status, type and user summaries.
With --from-file, a JSON search dump is analyzed instead and no query is needed.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if fromFile != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromFile != "" {
				return runStatsFromFile(fromFile)
			}
			return runStats(cmd.Context(), args[0])
		},
	}

	cmd.Flags().StringVar(&fromFile, "from-file", "", "Analyze a JSON search dump; bare file names are looked up in the jirastats data directory")

	return cmd
}

func loadSettings() (*config.Settings, error) {
	settings, err := pipelineOptions.Settings()
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"pageSize":    settings.PageSize,
		"pageTimeout": settings.PageTimeout,
		"cacheTTL":    settings.CacheTTL,
	}).Debug("Loaded settings")
	return settings, nil
}

func createService() (*service.Service, error) {
	if err := jiraOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid JIRA options: %w", err)
	}

	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	svc, err := service.NewService(jiraOptions, settings)
	if err != nil {
		return nil, fmt.Errorf("cannot create service: %w", err)
	}

	return svc, nil
}

func runCount(ctx context.Context, jql string) error {
	svc, err := createService()
	if err != nil {
		return err
	}

	count, err := svc.Count(ctx, jql)
	if err != nil {
		return fmt.Errorf("cannot count issues: %w", err)
	}

	return writeOutput(map[string]any{"query": jql, "total": count})
}

func runIssues(ctx context.Context, jql string) error {
	svc, err := createService()
	if err != nil {
		return err
	}

	payload, err := svc.Issues(ctx, jql, issueFields)
	if err != nil {
		return fmt.Errorf("cannot fetch issues: %w", err)
	}

	if len(payload.Issues) == 0 {
		fmt.Printf("No issues found matching query '%s'\n", jql)
		return nil
	}

	return writeOutput(payload)
}

func runStats(ctx context.Context, jql string) error {
	svc, err := createService()
	if err != nil {
		return err
	}

	report, err := svc.Statistics(ctx, jql)
	return printReport(report, err, fmt.Sprintf("matching query '%s'", jql))
}

func runStatsFromFile(path string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	path, err = resolveDumpPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read dump: %w", err)
	}

	payload, err := jira.DecodePayload(data, jira.FieldNames{
		Status:   settings.StatusField,
		Assignee: settings.AssigneeField,
	})
	if err != nil {
		return fmt.Errorf("cannot decode dump %s: %w", path, err)
	}

	report, err := service.NewOffline(settings).Analyze(payload)
	return printReport(report, err, fmt.Sprintf("in %s", path))
}

// resolveDumpPath looks up bare file names missing from the working directory
// in the data directory
func resolveDumpPath(path string) (string, error) {
	if strings.ContainsRune(path, filepath.Separator) {
		return path, nil
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine data directory: %w", err)
	}
	return filepath.Join(dataDir, path), nil
}

func printReport(report *timeline.Report, err error, source string) error {
	if err != nil {
		var validationErr *dataset.ValidationError
		if errors.As(err, &validationErr) && validationErr.Reason == dataset.ReasonMissing {
			fmt.Printf("No issues found %s\n", source)
			return nil
		}
		if errors.Is(err, issues.ErrValidation) {
			return fmt.Errorf("cannot analyze issues: %w", err)
		}
		return fmt.Errorf("cannot compute statistics: %w", err)
	}

	return writeOutput(newReportOutput(report))
}

// reportOutput is the printed form of a report, with timelines in dataset order
type reportOutput struct {
	Timelines []*timeline.Timeline `yaml:"timelines"`
	Report    timeline.Report      `yaml:",inline"`
}

func newReportOutput(report *timeline.Report) reportOutput {
	return reportOutput{Timelines: report.Ordered(), Report: *report}
}

func writeOutput(value any) error {
	var out io.Writer = os.Stdout
	if outputPath != "" {
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	return encodeYAML(out, value)
}

func encodeYAML(out io.Writer, value any) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return fmt.Errorf("cannot encode output: %w", err)
	}
	return encoder.Close()
}
