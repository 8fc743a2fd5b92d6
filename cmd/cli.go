package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/GeekMasher/advanced-security-compliance/internal/badge"
	"github.com/GeekMasher/advanced-security-compliance/internal/checker"
	"github.com/GeekMasher/advanced-security-compliance/internal/checks"
	"github.com/GeekMasher/advanced-security-compliance/internal/config"
	"github.com/GeekMasher/advanced-security-compliance/internal/git"
	"github.com/GeekMasher/advanced-security-compliance/internal/github"
	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/policy"
	"github.com/GeekMasher/advanced-security-compliance/internal/progress"
	"github.com/GeekMasher/advanced-security-compliance/internal/remote"
	"github.com/GeekMasher/advanced-security-compliance/internal/report"
	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
	"github.com/GeekMasher/advanced-security-compliance/internal/tui"
	"github.com/GeekMasher/advanced-security-compliance/internal/version"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	lookupEnv        = os.LookupEnv
)

// ExitError carries the process exit code for err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an Execute error to a process exit code: 0 on success or
// help, 2 on usage errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func Execute(args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "check":
		return runCheck(args[1:])
	case "policy":
		return runPolicy(args[1:])
	case "severities":
		return runSeverities(args[1:])
	case "version", "--version":
		fmt.Fprintln(stdout, version.Version)
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		return usageError(fmt.Sprintf("unknown command %q", args[0]))
	}
}

type checkFlags struct {
	configPath  string
	policyRef   string
	branch      string
	severity    string
	threatModel string
	action      string
	count       int
	display     bool
	debug       bool
	debugDir    string
	format      string
	tui         bool
	offline     string
	sarif       string
	jsonOut     string
	markdown    string
	snapshot    string
	badge       string
	badgeStyle  string
	repository  string
	instance    string
	ref         string
	token       string
	appToken    bool
	parallel    int
	disable     listFlag
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var f checkFlags
	fs.StringVar(&f.configPath, "config", "", "Config file layered over ~/.ghascompliance and ./.ghascompliance")
	fs.StringVar(&f.policyRef, "policy", "", "Policy file or owner/repo[/path][@branch] reference")
	fs.StringVar(&f.branch, "policy-branch", "", "Branch of the policy repository")
	fs.StringVar(&f.severity, "severity", "", "Severity threshold for technologies without a policy (default error)")
	fs.StringVar(&f.threatModel, "threat-model", "", "Threat model level: high|normal|low")
	fs.StringVar(&f.action, "action", "break", "On violations: break|continue")
	fs.IntVar(&f.count, "count", 0, "Number of violations allowed before failing")
	fs.BoolVar(&f.display, "display", false, "Print every violation")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug output")
	fs.StringVar(&f.debugDir, "debug-dir", "", "Write raw records of each check to this directory")
	fs.StringVar(&f.format, "format", "", "Output format: plain|actions (default actions under GitHub Actions)")
	fs.BoolVar(&f.tui, "tui", false, "Enable interactive terminal UI")
	fs.StringVar(&f.offline, "offline", "", "Read records from this directory instead of the GitHub API")
	fs.StringVar(&f.sarif, "sarif", "", "Write violations as SARIF to this path")
	fs.StringVar(&f.jsonOut, "json", "", "Write the compliance report as JSON to this path")
	fs.StringVar(&f.markdown, "markdown", "", "Write a markdown summary to this path")
	fs.StringVar(&f.snapshot, "snapshot", "", "Write the resolved policy as JSON to this path")
	fs.StringVar(&f.badge, "badge", "", "Write a compliance badge (.svg or shields.io JSON) to this path")
	fs.StringVar(&f.badgeStyle, "badge-style", "flat", "Badge style: flat|flat-square")
	fs.StringVar(&f.repository, "repository", "", "Repository to check (owner/repo, default $GITHUB_REPOSITORY)")
	fs.StringVar(&f.instance, "instance", "", "GitHub instance URL (default $GITHUB_SERVER_URL or https://github.com)")
	fs.StringVar(&f.ref, "ref", "", "Git ref for code scanning alerts (default $GITHUB_REF)")
	fs.StringVar(&f.token, "token", "", "GitHub token (default $GITHUB_TOKEN)")
	fs.BoolVar(&f.appToken, "github-app-token", false, "Token is a GitHub App installation token")
	fs.IntVar(&f.parallel, "parallel", 0, "Max concurrent checks (default all)")
	fs.Var(&f.disable, "disable", "Disable a technology check (repeatable or comma-separated)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &ExitError{Code: 2, Err: err}
	}
	if fs.NArg() > 0 {
		return usageError("usage: ghascompliance check [flags]")
	}
	switch f.action {
	case "break", "continue":
	default:
		return usageError("--action must be break or continue")
	}
	if f.count < 0 {
		return usageError("--count must be >= 0")
	}
	if f.format != "" && f.format != "plain" && f.format != "actions" {
		return usageError("--format must be plain or actions")
	}

	env := config.FromEnv(lookupEnv)
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	cfg = applyCheckFlags(cfg, f).ApplyEnv(env)
	workDir := detectWorkspace(&cfg)

	debug := f.debug || env.Debug
	sink := newSink(f.format, debug, env.Actions)

	threshold, err := severity.Parse(cfg.Policy.SeverityOrDefault())
	if err != nil {
		return err
	}

	level := f.threatModel
	if level == "" && cfg.ThreatModels.Source != "" {
		level, err = config.LoadThreatLevel(cfg.ThreatModels.Source, cfg.GitHub.Repository)
		if err != nil {
			return err
		}
	}
	policyCfg := config.SelectThreatModel(cfg, level, sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	token := firstNonEmpty(f.token, env.Token)
	doc, policyName, err := resolvePolicy(ctx, policyCfg, threshold, resolveOptions{
		Token:    token,
		AppToken: f.appToken,
		WorkDir:  workDir,
		Sink:     sink,
	})
	if err != nil {
		return err
	}
	progress.Infof(sink, "policy loaded: %s (%s)", doc.Name, policyName)

	if cfg.Reporting.Snapshot != "" {
		if err := policy.Save(cfg.Reporting.Snapshot, doc); err != nil {
			return err
		}
	}

	source, err := newSource(f.offline, cfg, token, sink)
	if err != nil {
		return err
	}

	chk, err := checker.New(doc, checker.Options{Threshold: threshold, Sink: sink})
	if err != nil {
		return err
	}

	runOpts := checks.Options{
		Technologies:      cfg.Checkers.Technologies(),
		MaxParallel:       f.parallel,
		Display:           f.display || cfg.Policy.DisplayEnabled(),
		DebugDir:          cfg.Reporting.DebugDir,
		AllowedViolations: f.count,
		Repository:        cfg.GitHub.Repository,
		Ref:               cfg.GitHub.Ref,
		Sink:              sink,
	}

	rep, runErr := runChecks(ctx, source, chk, runOpts, f.tui && tui.Available() && !env.Actions)
	rep.Policy = policyName
	rep.Threshold = string(threshold)
	if runErr != nil {
		progress.Warnf(sink, "checks completed with errors: %v", runErr)
	}

	if err := writeReports(cfg.Reporting, f.markdown, rep); err != nil {
		return err
	}
	if cfg.Reporting.Badge != "" {
		if err := badge.Write(cfg.Reporting.Badge, rep, badge.ParseStyle(f.badgeStyle)); err != nil {
			return err
		}
	}
	fmt.Fprint(stdout, report.RenderSummary(rep, colorEnabled(env)))

	if rep.Passed {
		return nil
	}
	if f.action == "continue" {
		progress.Warnf(sink, "%d violations found, continuing", rep.TotalViolations)
		return nil
	}
	if runErr != nil {
		return &ExitError{Code: 1, Err: runErr}
	}
	return &ExitError{Code: 1, Err: fmt.Errorf("%d violations found (%d allowed)", rep.TotalViolations, rep.AllowedCount)}
}

func applyCheckFlags(cfg config.Config, f checkFlags) config.Config {
	if f.policyRef != "" {
		cfg.Policy.Path = f.policyRef
		cfg.Policy.Repository = ""
	}
	if f.branch != "" {
		cfg.Policy.Branch = f.branch
	}
	if f.severity != "" {
		cfg.Policy.Severity = f.severity
	}
	if f.repository != "" {
		cfg.GitHub.Repository = f.repository
	}
	if f.instance != "" {
		cfg.GitHub.Instance = f.instance
	}
	if f.ref != "" {
		cfg.GitHub.Ref = f.ref
	}
	if f.sarif != "" {
		cfg.Reporting.SARIF = f.sarif
	}
	if f.jsonOut != "" {
		cfg.Reporting.JSON = f.jsonOut
	}
	if f.snapshot != "" {
		cfg.Reporting.Snapshot = f.snapshot
	}
	if f.badge != "" {
		cfg.Reporting.Badge = f.badge
	}
	if f.debugDir != "" {
		cfg.Reporting.DebugDir = f.debugDir
	}
	for _, name := range f.disable.Values() {
		if t, err := policy.ParseTechnology(name); err == nil {
			cfg.Checkers.Disable(t)
		}
	}
	return cfg
}

// detectWorkspace returns the repository root of the working directory and
// fills the repository and ref from the local checkout when unset.
func detectWorkspace(cfg *config.Config) string {
	root, err := git.RepoRoot(".")
	if err != nil {
		return ""
	}
	if cfg.GitHub.Repository == "" {
		if repo, err := git.OriginRepository(root); err == nil {
			cfg.GitHub.Repository = repo
		}
	}
	if cfg.GitHub.Ref == "" {
		if ref, err := git.CurrentRef(root); err == nil {
			cfg.GitHub.Ref = ref
		}
	}
	return root
}

func runChecks(ctx context.Context, source github.Source, chk *checker.Checker, opts checks.Options, useTUI bool) (model.Report, error) {
	if !useTUI {
		return checks.NewRunner(source, chk, opts).Run(ctx)
	}

	events := make(chan progress.Event, 128)
	opts.Sink = progress.NewChannelSink(events)

	type runResult struct {
		report model.Report
		err    error
	}
	runDone := make(chan runResult, 1)
	go func() {
		defer close(events)
		rep, err := checks.NewRunner(source, chk, opts).Run(ctx)
		runDone <- runResult{report: rep, err: err}
	}()

	techs := make([]string, 0, len(opts.Technologies))
	for _, t := range opts.Technologies {
		techs = append(techs, string(t))
	}
	if err := tui.Run(tui.Options{Events: events, Technologies: techs}); err != nil {
		return model.Report{}, err
	}
	result := <-runDone
	return result.report, result.err
}

type resolveOptions struct {
	Token    string
	AppToken bool
	WorkDir  string
	TempDir  string
	Sink     progress.Sink
}

// resolvePolicy loads the policy named by pc. With no policy configured the
// repository's .compliance/policy.yml is used when present, otherwise a
// default document built from threshold.
func resolvePolicy(ctx context.Context, pc config.PolicyConfig, threshold severity.Level, opts resolveOptions) (*policy.Document, string, error) {
	load := policy.LoadOptions{WorkDir: opts.WorkDir, TempDir: opts.TempDir, Sink: opts.Sink}
	clone := remote.CloneOptions{
		Instance: pc.Instance,
		Token:    opts.Token,
		AppToken: opts.AppToken,
		TempDir:  opts.TempDir,
		Sink:     opts.Sink,
	}

	if repo := strings.TrimSpace(pc.Repository); repo != "" {
		uri := remote.URI{Repository: repo, Path: pc.Path, Branch: pc.Branch}
		if pc.Path != "" {
			if _, err := remote.ParseURI(pc.Path); err != nil {
				return nil, "", err
			}
		}
		doc, err := remote.LoadFromRemote(ctx, uri, clone, load)
		return doc, uri.String(), err
	}

	if ref := strings.TrimSpace(pc.Path); ref != "" {
		uri, err := remote.ParseURI(ref)
		if err != nil {
			return nil, "", err
		}
		if uri.Remote() {
			if uri.Branch == "" {
				uri.Branch = pc.Branch
			}
			doc, err := remote.LoadFromRemote(ctx, uri, clone, load)
			return doc, uri.String(), err
		}
		doc, err := policy.Load(uri.Path, load)
		return doc, uri.Path, err
	}

	root := opts.WorkDir
	if root == "" {
		root = "."
	}
	if path := policy.DefaultPath(root); fileExists(path) {
		doc, err := policy.Load(path, load)
		return doc, path, err
	}
	progress.Debugf(opts.Sink, "no policy configured, using severity threshold %s", threshold)
	return policy.Default(threshold), policy.DefaultName, nil
}

func newSource(offline string, cfg config.Config, token string, sink progress.Sink) (github.Source, error) {
	if offline != "" {
		info, err := os.Stat(offline)
		if err != nil {
			return nil, fmt.Errorf("offline directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("offline path %s is not a directory", offline)
		}
		return github.FileSource{Dir: offline}, nil
	}
	repo, err := github.ParseRepository(cfg.GitHub.Repository)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("a GitHub token is required (--token or GITHUB_TOKEN)")
	}
	return github.NewClient(github.ClientOptions{
		Instance:   cfg.GitHub.Instance,
		Token:      token,
		Repository: repo,
		Ref:        cfg.GitHub.Ref,
		Sink:       sink,
	})
}

func writeReports(r config.Reporting, markdown string, rep model.Report) error {
	if r.SARIF != "" {
		if err := report.WriteSARIF(r.SARIF, rep); err != nil {
			return err
		}
	}
	if r.JSON != "" {
		if err := report.WriteJSON(r.JSON, rep); err != nil {
			return err
		}
	}
	if markdown != "" {
		if err := report.WriteMarkdown(markdown, rep); err != nil {
			return err
		}
	}
	return nil
}

func newSink(format string, debug, actions bool) progress.Sink {
	if format == "actions" || (format == "" && actions) {
		return progress.NewActionsSink(stderr)
	}
	return progress.NewPlainSink(stderr, debug)
}

func colorEnabled(env config.Env) bool {
	if env.Actions {
		return false
	}
	if _, ok := lookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := stdout.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func runPolicy(args []string) error {
	if len(args) == 0 {
		return usageError("usage: ghascompliance policy <validate|show> [flags]")
	}
	switch args[0] {
	case "validate":
		return runPolicyLoad("policy validate", args[1:], false)
	case "show":
		return runPolicyLoad("policy show", args[1:], true)
	default:
		return usageError(fmt.Sprintf("unknown policy subcommand %q", args[0]))
	}
}

func runPolicyLoad(name string, args []string, show bool) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	branch := fs.String("branch", "", "Branch of the policy repository")
	sev := fs.String("severity", string(severity.Error), "Threshold used when no policy is given")
	token := fs.String("token", "", "GitHub token for remote policies (default $GITHUB_TOKEN)")
	instance := fs.String("instance", "", "GitHub instance URL for remote policies")
	debug := fs.Bool("debug", false, "Enable debug output")

	var ref string
	parseArgs := args
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		ref = args[0]
		parseArgs = args[1:]
	}
	if err := fs.Parse(parseArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &ExitError{Code: 2, Err: err}
	}
	switch {
	case ref == "" && fs.NArg() == 1:
		ref = fs.Arg(0)
	case fs.NArg() == 0:
	default:
		return usageError(fmt.Sprintf("usage: ghascompliance %s [policy] [flags]", name))
	}

	threshold, err := severity.Parse(*sev)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	env := config.FromEnv(lookupEnv)
	sink := progress.NewPlainSink(stderr, *debug || env.Debug)
	pc := config.PolicyConfig{Path: ref, Branch: *branch, Instance: firstNonEmpty(*instance, env.ServerURL)}
	doc, source, err := resolvePolicy(context.Background(), pc, threshold, resolveOptions{
		Token: firstNonEmpty(*token, env.Token),
		Sink:  sink,
	})
	if err != nil {
		return err
	}

	if !show {
		fmt.Fprintf(stdout, "policy is valid: %s (%s)\n", doc.Name, source)
		for _, t := range doc.Enabled() {
			p, _ := doc.Policy(t)
			fmt.Fprintf(stdout, "  %-16s level=%s\n", t, p.Level)
		}
		return nil
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	fmt.Fprintln(stdout, string(b))
	return nil
}

func runSeverities(args []string) error {
	fs := flag.NewFlagSet("severities", flag.ContinueOnError)
	fs.SetOutput(stderr)
	from := fs.String("from", "", "Expand from this level")
	lower := fs.Bool("lower", false, "Expand to lower severities instead of higher")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &ExitError{Code: 2, Err: err}
	}

	levels := severity.Levels(true)
	if *from != "" {
		l, err := severity.Parse(*from)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		grouping := severity.Higher
		if *lower {
			grouping = severity.Lower
		}
		levels, err = severity.Expand(l, grouping)
		if err != nil {
			return err
		}
	}
	for _, l := range levels {
		fmt.Fprintln(stdout, l)
	}
	return nil
}

func usageError(msg string) error {
	printUsage()
	return &ExitError{Code: 2, Err: errors.New(msg)}
}

func printUsage() {
	fmt.Fprintln(stderr, "GitHub Advanced Security Compliance")
	fmt.Fprintln(stderr, "")
	fmt.Fprintln(stderr, "Usage:")
	fmt.Fprintln(stderr, "  ghascompliance check [flags]")
	fmt.Fprintln(stderr, "  ghascompliance policy validate [policy] [flags]")
	fmt.Fprintln(stderr, "  ghascompliance policy show [policy] [flags]")
	fmt.Fprintln(stderr, "  ghascompliance severities [--from <level>] [--lower]")
	fmt.Fprintln(stderr, "  ghascompliance version")
	fmt.Fprintln(stderr, "")
	fmt.Fprintln(stderr, "Flags (check):")
	fmt.Fprintln(stderr, "  --policy <ref>         Policy file or owner/repo[/path][@branch]")
	fmt.Fprintln(stderr, "  --policy-branch <b>    Branch of the policy repository")
	fmt.Fprintln(stderr, "  --config <path>        Extra config file")
	fmt.Fprintln(stderr, "  --severity <level>     Threshold for technologies without a policy (default error)")
	fmt.Fprintln(stderr, "  --threat-model <lvl>   high|normal|low")
	fmt.Fprintln(stderr, "  --action <a>           break|continue (default break)")
	fmt.Fprintln(stderr, "  --count <n>            Violations allowed before failing (default 0)")
	fmt.Fprintln(stderr, "  --display              Print every violation")
	fmt.Fprintln(stderr, "  --disable <tech>       Skip a technology (repeatable)")
	fmt.Fprintln(stderr, "  --offline <dir>        Read records from exported JSON files")
	fmt.Fprintln(stderr, "  --sarif <path>         Write violations as SARIF")
	fmt.Fprintln(stderr, "  --json <path>          Write the report as JSON")
	fmt.Fprintln(stderr, "  --markdown <path>      Write a markdown summary")
	fmt.Fprintln(stderr, "  --snapshot <path>      Write the resolved policy")
	fmt.Fprintln(stderr, "  --badge <path>         Write a compliance badge (.svg or JSON)")
	fmt.Fprintln(stderr, "  --debug                Debug output")
	fmt.Fprintln(stderr, "  --debug-dir <dir>      Dump raw records per check")
	fmt.Fprintln(stderr, "  --format <f>           plain|actions")
	fmt.Fprintln(stderr, "  --tui                  Interactive terminal UI")
	fmt.Fprintln(stderr, "  --repository <o/r>     Repository (default $GITHUB_REPOSITORY)")
	fmt.Fprintln(stderr, "  --instance <url>       GitHub instance (default $GITHUB_SERVER_URL)")
	fmt.Fprintln(stderr, "  --ref <ref>            Ref for code scanning alerts (default $GITHUB_REF)")
	fmt.Fprintln(stderr, "  --token <t>            GitHub token (default $GITHUB_TOKEN)")
}

func fileExists(path string) bool {
	info, err := os.Stat(filepath.Clean(path))
	return err == nil && !info.IsDir()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type listFlag struct {
	values []string
}

func (f *listFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(f.values, ",")
}

func (f *listFlag) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := policy.ParseTechnology(part); err != nil {
			return err
		}
		f.values = append(f.values, part)
	}
	return nil
}

func (f *listFlag) Values() []string {
	if f == nil || len(f.values) == 0 {
		return nil
	}
	return append([]string(nil), f.values...)
}
