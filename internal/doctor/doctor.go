// Package doctor probes the local environment for the connectivity,
// credentials, and tooling a workflow run needs.
package doctor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
)

// Status is the outcome of a single check.
type Status string

const (
	// StatusPass means the check succeeded.
	StatusPass Status = "pass"

	// StatusWarn means the check found a non-fatal problem.
	StatusWarn Status = "warn"

	// StatusFail means the check found a problem that will break runs.
	StatusFail Status = "fail"
)

// CheckResult is the outcome of one environment probe.
type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// ExitCode reduces check results to a process exit code:
// 0 when everything passed, 1 when anything failed, 2 when
// there were warnings but no failures.
func ExitCode(results []CheckResult) int {
	code := 0
	for _, r := range results {
		switch r.Status {
		case StatusFail:
			return 1
		case StatusWarn:
			code = 2
		}
	}
	return code
}

// Resolver resolves hostnames. *net.Resolver implements it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ModelLister lists Bedrock foundation models. The bedrock client
// implements it.
type ModelLister interface {
	ListFoundationModels(ctx context.Context, in *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
}

const (
	dnsTimeout = 10 * time.Second
	awsTimeout = 15 * time.Second
)

// Doctor runs environment probes against a region.
type Doctor struct {
	region    string
	profile   string
	agentArgv []string
	endpoint  string
	resolver  Resolver
	client    *http.Client
	creds     aws.CredentialsProvider
	models    ModelLister
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithProfile sets the AWS shared-config profile used when loading
// the default credential chain.
func WithProfile(profile string) Option {
	return func(d *Doctor) { d.profile = profile }
}

// WithAgentCommand sets the agent argv whose executable is checked
// for presence on PATH.
func WithAgentCommand(argv []string) Option {
	return func(d *Doctor) { d.agentArgv = argv }
}

// WithEndpoint overrides the HTTPS reachability probe URL.
func WithEndpoint(url string) Option {
	return func(d *Doctor) { d.endpoint = url }
}

// WithResolver overrides the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(d *Doctor) { d.resolver = r }
}

// WithHTTPClient overrides the HTTP client used for reachability probes.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Doctor) { d.client = c }
}

// WithCredentials overrides the AWS credential provider.
func WithCredentials(p aws.CredentialsProvider) Option {
	return func(d *Doctor) { d.creds = p }
}

// WithModelLister overrides the Bedrock client.
func WithModelLister(m ModelLister) Option {
	return func(d *Doctor) { d.models = m }
}

// New creates a Doctor for the given region.
func New(region string, opts ...Option) *Doctor {
	d := &Doctor{
		region:   region,
		resolver: net.DefaultResolver,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunChecks runs every probe and returns the results in a fixed order.
// A missing region short-circuits: nothing else can be checked without one.
func (d *Doctor) RunChecks(ctx context.Context) []CheckResult {
	var results []CheckResult

	if d.region == "" {
		return append(results, CheckResult{
			Name:    "aws region",
			Status:  StatusFail,
			Message: "no region configured",
			Fix:     "set aws.region in config or export AWS_REGION",
		})
	}
	results = append(results, CheckResult{
		Name:    "aws region",
		Status:  StatusPass,
		Message: "set to " + d.region,
	})

	results = append(results, d.checkAgentCommand())

	endpoints := []struct {
		name string
		host string
	}{
		{"dns bedrock runtime", fmt.Sprintf("bedrock-runtime.%s.amazonaws.com", d.region)},
		{"dns bedrock control", fmt.Sprintf("bedrock.%s.amazonaws.com", d.region)},
		{"dns sts", fmt.Sprintf("sts.%s.amazonaws.com", d.region)},
	}
	for _, ep := range endpoints {
		results = append(results, d.checkDNS(ctx, ep.name, ep.host))
	}

	url := d.endpoint
	if url == "" {
		url = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", d.region)
	}
	results = append(results, d.checkHTTPS(ctx, url))

	if err := d.ensureAWS(ctx); err != nil {
		return append(results, CheckResult{
			Name:    "aws config",
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "check ~/.aws/config and AWS_* environment variables",
		})
	}
	results = append(results, d.checkCredentials(ctx))
	results = append(results, d.checkBedrock(ctx))

	return results
}

func (d *Doctor) checkAgentCommand() CheckResult {
	if len(d.agentArgv) == 0 {
		return CheckResult{
			Name:    "agent command",
			Status:  StatusWarn,
			Message: "no agent command configured",
			Fix:     "set agent.command in config",
		}
	}
	bin := d.agentArgv[0]
	path, err := exec.LookPath(bin)
	if err != nil {
		return CheckResult{
			Name:    "agent command",
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s not found on PATH", bin),
			Fix:     "install the agent CLI or change agent.command in config",
		}
	}
	return CheckResult{
		Name:    "agent command",
		Status:  StatusPass,
		Message: "found " + path,
	}
}

func (d *Doctor) checkDNS(ctx context.Context, name, host string) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	if _, err := d.resolver.LookupHost(ctx, host); err != nil {
		return CheckResult{
			Name:    name,
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to resolve %s: %v", host, err),
			Fix:     "check internet connectivity and DNS settings",
		}
	}
	return CheckResult{
		Name:    name,
		Status:  StatusPass,
		Message: "resolved " + host,
	}
}

func (d *Doctor) checkHTTPS(ctx context.Context, url string) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return CheckResult{
			Name:    "https connectivity",
			Status:  StatusFail,
			Message: err.Error(),
		}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return CheckResult{
			Name:    "https connectivity",
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to connect to %s: %v", url, err),
			Fix:     "check firewall, proxy settings, or VPC endpoint configuration",
		}
	}
	resp.Body.Close()

	// Any response at all proves reachability; unauthenticated HEAD
	// requests to service endpoints normally come back 4xx.
	return CheckResult{
		Name:    "https connectivity",
		Status:  StatusPass,
		Message: "reached " + url,
	}
}

// ensureAWS lazily builds the credential provider and Bedrock client
// from the default chain unless both were injected.
func (d *Doctor) ensureAWS(ctx context.Context) error {
	if d.creds != nil && d.models != nil {
		return nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(d.region)}
	if d.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(d.profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	if d.creds == nil {
		d.creds = cfg.Credentials
	}
	if d.models == nil {
		d.models = bedrock.NewFromConfig(cfg)
	}
	return nil
}

func (d *Doctor) checkCredentials(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, awsTimeout)
	defer cancel()

	creds, err := d.creds.Retrieve(ctx)
	if err != nil {
		return CheckResult{
			Name:    "aws credentials",
			Status:  StatusFail,
			Message: fmt.Sprintf("credential chain failed: %v", err),
			Fix:     "configure credentials (aws configure, SSO login, or drover creds)",
		}
	}
	msg := "credentials resolved"
	if creds.Source != "" {
		msg += " via " + creds.Source
	}
	return CheckResult{
		Name:    "aws credentials",
		Status:  StatusPass,
		Message: msg,
	}
}

func (d *Doctor) checkBedrock(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, awsTimeout)
	defer cancel()

	out, err := d.models.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{
		ByProvider: aws.String("anthropic"),
	})
	if err != nil {
		fix := "check IAM permissions for bedrock:ListFoundationModels"
		msg := err.Error()
		if strings.Contains(msg, "AccessDenied") || strings.Contains(msg, "UnauthorizedOperation") {
			fix = "add bedrock:ListFoundationModels to your IAM role or user"
		}
		return CheckResult{
			Name:    "bedrock access",
			Status:  StatusFail,
			Message: msg,
			Fix:     fix,
		}
	}
	if len(out.ModelSummaries) == 0 {
		return CheckResult{
			Name:    "bedrock access",
			Status:  StatusWarn,
			Message: fmt.Sprintf("no Anthropic models available in %s", d.region),
			Fix:     "request model access in the Bedrock console",
		}
	}
	return CheckResult{
		Name:    "bedrock access",
		Status:  StatusPass,
		Message: fmt.Sprintf("%d Anthropic model(s) available in %s", len(out.ModelSummaries), d.region),
	}
}
