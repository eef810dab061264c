package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/wheelfetch/internal/extract"
	"github.com/3leaps/wheelfetch/internal/fetch"
	"github.com/3leaps/wheelfetch/internal/gitinfo"
	gh "github.com/3leaps/wheelfetch/internal/host/github"
	"github.com/3leaps/wheelfetch/internal/install"
	"github.com/3leaps/wheelfetch/internal/logging"
	"github.com/3leaps/wheelfetch/internal/model"
	"github.com/3leaps/wheelfetch/internal/resolve"
	"github.com/3leaps/wheelfetch/internal/verify"
)

var (
	version = "dev"
	commit  = "none"
)

// exitCode carries the installer's status out of cobra.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("installer exited with status %d", int(e)) }

type app struct {
	v          *viper.Viper
	cfg        Config
	configPath string
	stdout     io.Writer
	stderr     io.Writer
	closer     io.Closer
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.closer != nil {
		_ = a.closer.Close()
	}
	var code exitCode
	switch {
	case err == nil:
		return 0
	case errors.As(err, &code):
		return int(code)
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "wheelfetch",
		Short:         "Install the wheels a GitHub Actions run built for this revision",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default: ./wheelfetch.yaml or ~/.config/wheelfetch/wheelfetch.yaml)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.String("python", defaultPython(), "Python interpreter that will install the wheels")
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("python.executable", flags.Lookup("python"))

	root.AddCommand(a.installCommand(), a.downloadCommand(), a.tagsCommand(), a.versionCommand())
	return root
}

func (a *app) setup() error {
	cfg, err := loadConfig(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	id, closer, err := logging.Init(cfg.Logging, a.stderr)
	if err != nil {
		return err
	}
	a.closer = closer
	logrus.WithFields(logrus.Fields{"component": "cli", "version": version}).Debugf("invocation %s", id)
	return nil
}

type requestFlags struct {
	revision string
	ref      string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.revision, "revision", "", "commit to resolve (default: git rev-parse HEAD)")
	cmd.Flags().StringVar(&f.ref, "ref", "", "branch or tag the push was recorded against (default: exact tag at HEAD, else DEFAULT_BRANCH)")
}

// request turns OWNER REPO DEFAULT_BRANCH RUN_NAME ARTIFACT_NAME into a
// fully resolved request, asking git for whatever the flags leave open.
func (a *app) request(ctx context.Context, args []string, f requestFlags) (model.Request, error) {
	req := model.Request{
		RunQuery: model.RunQuery{
			Owner:   args[0],
			Repo:    args[1],
			Branch:  f.ref,
			HeadSHA: f.revision,
			RunName: args[3],
		},
		ArtifactName: args[4],
	}
	var err error
	if req.HeadSHA == "" {
		if req.HeadSHA, err = gitinfo.HeadRevision(ctx, "."); err != nil {
			return model.Request{}, fmt.Errorf("determine revision: %w", err)
		}
	}
	if req.Branch == "" {
		if req.Branch, err = gitinfo.Ref(ctx, ".", args[2]); err != nil {
			return model.Request{}, fmt.Errorf("determine ref: %w", err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"component": "cli",
		"repo":      req.Owner + "/" + req.Repo,
		"revision":  req.HeadSHA,
		"ref":       req.Branch,
	}).Info("resolving artifact")
	return req, nil
}

// orchestrator wires the pipeline. Everything local (token, tag set, key)
// is settled here, before any request leaves the machine.
func (a *app) orchestrator(ctx context.Context) (*fetch.Orchestrator, error) {
	token := githubToken(a.cfg)
	if token == "" {
		return nil, fmt.Errorf("no GitHub token: set WHEELFETCH_GITHUB_TOKEN, GITHUB_API_TOKEN or GITHUB_TOKEN")
	}

	set, err := platformTags(ctx, a.cfg)
	if err != nil {
		return nil, err
	}

	var policy verify.Policy
	if a.cfg.Verify.MinisignKey != "" {
		if policy.PublicKey, err = verify.LoadPublicKey(a.cfg.Verify.MinisignKey); err != nil {
			return nil, err
		}
	}
	policy.RequireSignature = a.cfg.Verify.RequireSignature

	client, err := gh.New(gh.Config{
		APIBase:           a.cfg.GitHub.APIBase,
		Token:             token,
		UserAgent:         gh.UserAgent(version),
		Timeout:           a.cfg.GitHub.Timeout,
		DownloadTimeout:   a.cfg.GitHub.DownloadTimeout,
		RequestsPerSecond: a.cfg.GitHub.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}

	extractor := extract.New(client, set, a.cfg.Extract.MaxArchiveBytes, extract.Options{
		MaxEntryBytes: a.cfg.Extract.MaxEntryBytes,
		Policy:        policy,
	})
	return fetch.New(resolve.New(client), extractor), nil
}

func (a *app) installCommand() *cobra.Command {
	var rf requestFlags
	var pipArgs []string
	cmd := &cobra.Command{
		Use:   "install OWNER REPO DEFAULT_BRANCH RUN_NAME ARTIFACT_NAME",
		Short: "Fetch the compatible wheels for this revision and pip install them",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			req, err := a.request(ctx, args, rf)
			if err != nil {
				return err
			}
			installer := &install.PipInstaller{
				Python: a.cfg.Python.Executable,
				Args:   append(append([]string{}, a.cfg.Install.PipArgs...), pipArgs...),
				Stdout: a.stdout,
				Stderr: a.stderr,
			}
			code, err := o.Install(ctx, req, installer)
			if err != nil {
				return err
			}
			if code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().StringArrayVar(&pipArgs, "pip-arg", nil, "extra argument passed to pip install (repeatable)")
	return cmd
}

func (a *app) downloadCommand() *cobra.Command {
	var rf requestFlags
	var destDir, output string
	cmd := &cobra.Command{
		Use:   "download OWNER REPO DEFAULT_BRANCH RUN_NAME ARTIFACT_NAME",
		Short: "Fetch the compatible wheels for this revision into a directory",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			req, err := a.request(ctx, args, rf)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", destDir, err)
			}
			res, err := o.Run(ctx, req, destDir)
			if err != nil {
				return err
			}
			return render(a.stdout, output, newDownloadReport(req, res))
		},
	}
	rf.register(cmd)
	cmd.Flags().StringVar(&destDir, "dest-dir", "", "directory to write the wheels to")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "report format (text, json, yaml)")
	_ = cmd.MarkFlagRequired("dest-dir")
	return cmd
}

func (a *app) tagsCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Print the wheel tags the target interpreter accepts, most preferred first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			set, err := platformTags(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			return render(a.stdout, output, newTagsReport(set))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json, yaml)")
	return cmd
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wheelfetch version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stdout, "wheelfetch %s (%s)\n", version, commit)
			return nil
		},
	}
}
