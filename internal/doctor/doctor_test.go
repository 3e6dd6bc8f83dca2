package doctor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"
)

type fakeResolver struct {
	fail map[string]bool
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if f.fail[host] {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return []string{"198.51.100.7"}, nil
}

type fakeLister struct {
	out *bedrock.ListFoundationModelsOutput
	err error
}

func (f *fakeLister) ListFoundationModels(context.Context, *bedrock.ListFoundationModelsInput, ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error) {
	return f.out, f.err
}

func staticCreds() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIAEXAMPLE", Source: "StaticProvider"}, nil
	})
}

func failingCreds(err error) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, err
	})
}

func modelsAvailable(n int) *bedrock.ListFoundationModelsOutput {
	out := &bedrock.ListFoundationModelsOutput{}
	for i := 0; i < n; i++ {
		out.ModelSummaries = append(out.ModelSummaries, bedrocktypes.FoundationModelSummary{})
	}
	return out
}

// newTestDoctor wires every probe to a fake that passes, plus an
// httptest server for the reachability check.
func newTestDoctor(t *testing.T, opts ...Option) *Doctor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	base := []Option{
		WithResolver(&fakeResolver{}),
		WithEndpoint(srv.URL),
		WithHTTPClient(srv.Client()),
		WithCredentials(staticCreds()),
		WithModelLister(&fakeLister{out: modelsAvailable(2)}),
		WithAgentCommand([]string{"sh"}),
	}
	return New("us-east-1", append(base, opts...)...)
}

func findResult(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %q in %v", name, results)
	return CheckResult{}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    int
	}{
		{"empty", nil, 0},
		{"all pass", []CheckResult{{Status: StatusPass}, {Status: StatusPass}}, 0},
		{"warn only", []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, 2},
		{"any fail", []CheckResult{{Status: StatusWarn}, {Status: StatusFail}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.results); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunChecksMissingRegion(t *testing.T) {
	d := New("")
	results := d.RunChecks(context.Background())

	if len(results) != 1 {
		t.Fatalf("expected a single short-circuit result, got %d", len(results))
	}
	if results[0].Status != StatusFail {
		t.Errorf("status = %s, want fail", results[0].Status)
	}
	if results[0].Fix == "" {
		t.Error("expected a fix hint for the missing region")
	}
}

func TestRunChecksAllPass(t *testing.T) {
	d := newTestDoctor(t)
	results := d.RunChecks(context.Background())

	for _, r := range results {
		if r.Status != StatusPass {
			t.Errorf("%s: status = %s (%s), want pass", r.Name, r.Status, r.Message)
		}
	}
	if got := ExitCode(results); got != 0 {
		t.Errorf("ExitCode() = %d, want 0", got)
	}

	// One region, one agent command, three DNS probes, HTTPS,
	// credentials, Bedrock.
	if len(results) != 8 {
		t.Errorf("len(results) = %d, want 8", len(results))
	}
}

func TestRunChecksDNSFailure(t *testing.T) {
	resolver := &fakeResolver{fail: map[string]bool{
		"sts.us-east-1.amazonaws.com": true,
	}}
	d := newTestDoctor(t, WithResolver(resolver))
	results := d.RunChecks(context.Background())

	r := findResult(t, results, "dns sts")
	if r.Status != StatusFail {
		t.Errorf("status = %s, want fail", r.Status)
	}
	if r.Fix == "" {
		t.Error("expected a fix hint")
	}
	if ExitCode(results) != 1 {
		t.Errorf("ExitCode() = %d, want 1", ExitCode(results))
	}
}

func TestRunChecksCredentialFailure(t *testing.T) {
	d := newTestDoctor(t, WithCredentials(failingCreds(fmt.Errorf("no providers in chain"))))
	results := d.RunChecks(context.Background())

	r := findResult(t, results, "aws credentials")
	if r.Status != StatusFail {
		t.Errorf("status = %s, want fail", r.Status)
	}
}

func TestRunChecksBedrockNoModels(t *testing.T) {
	d := newTestDoctor(t, WithModelLister(&fakeLister{out: modelsAvailable(0)}))
	results := d.RunChecks(context.Background())

	r := findResult(t, results, "bedrock access")
	if r.Status != StatusWarn {
		t.Errorf("status = %s, want warn", r.Status)
	}
	if ExitCode(results) != 2 {
		t.Errorf("ExitCode() = %d, want 2", ExitCode(results))
	}
}

func TestRunChecksBedrockAccessDenied(t *testing.T) {
	d := newTestDoctor(t, WithModelLister(&fakeLister{
		err: fmt.Errorf("operation error Bedrock: ListFoundationModels, AccessDeniedException"),
	}))
	results := d.RunChecks(context.Background())

	r := findResult(t, results, "bedrock access")
	if r.Status != StatusFail {
		t.Errorf("status = %s, want fail", r.Status)
	}
	if r.Fix != "add bedrock:ListFoundationModels to your IAM role or user" {
		t.Errorf("fix = %q, want the IAM-specific hint", r.Fix)
	}
}

func TestRunChecksMissingAgentCommand(t *testing.T) {
	d := newTestDoctor(t, WithAgentCommand([]string{"definitely-not-a-real-binary-7f3a"}))
	results := d.RunChecks(context.Background())

	r := findResult(t, results, "agent command")
	if r.Status != StatusWarn {
		t.Errorf("status = %s, want warn", r.Status)
	}
}
