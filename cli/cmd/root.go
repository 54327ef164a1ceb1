package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rewind/api/config"
	"rewind/api/logging"
	"rewind/api/model"
	"rewind/cli/api"
)

var (
	projectPath string
	service     string
	stage       string
	region      string
	provider    string
	bucket      string
	logLevel    string
	apiURL      string
	apiToken    string

	cfg     *config.Config
	project *model.Project
	logger  *zap.Logger
	client  *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "rewind",
	Short: "Roll a deployed stack back to a recorded deployment",
	Long: `rewind restores a service stage to one of its recorded deployments.

Every deploy leaves its template and artifacts under
serverless/<service>/<stage>/<epochMillis>-<ISO8601>/ in the deployment
bucket. rewind finds the one matching a timestamp, asks the stack provider
to apply its template, and watches the stack until it settles.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadSettings(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&projectPath, "project", "", "path to rewind.yaml (env REWIND_PROJECT)")
	f.StringVar(&service, "service", "", "service name (default from rewind.yaml)")
	f.StringVarP(&stage, "stage", "s", "", "stage to roll back (env REWIND_STAGE)")
	f.StringVarP(&region, "region", "r", "", "region of the stack (env REWIND_REGION)")
	f.StringVar(&provider, "provider", "", "stack provider: cloudformation or nomad (env REWIND_PROVIDER)")
	f.StringVar(&bucket, "bucket", "", "deployment bucket (default: looked up from the stack)")
	f.StringVar(&logLevel, "log-level", "", "log level written to stderr (default warn)")
	f.StringVar(&apiURL, "api", os.Getenv("REWIND_URL"), "drive a rewind API server instead of the provider directly")
	f.StringVar(&apiToken, "token", os.Getenv("REWIND_API_TOKEN"), "bearer token for --api")
}

// loadSettings layers flags over the environment and the project file.
func loadSettings(cmd *cobra.Command) error {
	cfg = config.Load()
	flags := cmd.Flags()
	if flags.Changed("project") {
		cfg.Project = projectPath
	}
	if flags.Changed("stage") {
		cfg.Stage = stage
	}
	if flags.Changed("region") {
		cfg.Region = region
	}
	if flags.Changed("provider") {
		cfg.Provider = provider
	}
	if flags.Changed("bucket") {
		cfg.Bucket = bucket
	}

	level := "warn"
	if flags.Changed("log-level") {
		level = logLevel
	}
	var err error
	if logger, err = logging.New(level); err != nil {
		return err
	}

	project = nil
	p, err := model.LoadProject(cfg.Project)
	switch {
	case err == nil:
		project = p
	case errors.Is(err, os.ErrNotExist) && !flags.Changed("project"):
	default:
		return fmt.Errorf("project file %s: %w", cfg.Project, err)
	}
	if service != "" {
		if project == nil {
			project = &model.Project{}
		}
		project.Service = service
	}

	if apiURL != "" {
		client = api.New(apiURL, apiToken)
	}
	return nil
}

// serviceName is the service the command acts on.
func serviceName() (string, error) {
	if project == nil || project.Service == "" {
		return "", fmt.Errorf("no service: pass --service or create %s", cfg.Project)
	}
	return project.Service, nil
}

// request builds the rollback request for the current settings.
func request(timestamp string) (model.RollbackRequest, error) {
	if _, err := serviceName(); err != nil {
		return model.RollbackRequest{}, err
	}
	req := project.RequestFor(cfg.Stage, cfg.Region, timestamp)
	if cfg.Bucket != "" {
		req.Bucket = cfg.Bucket
	}
	req.PollInterval = cfg.PollInterval
	req.MonitorTimeout = cfg.MonitorTimeout
	return req, nil
}
