// Package awscreds exchanges an OIDC identity token for temporary AWS
// credentials in the credential_process output format.
//
// Two exchange paths are supported. With a role ARN configured the token
// goes through STS AssumeRoleWithWebIdentity. Otherwise the token goes
// through a Cognito identity pool (GetId, then GetCredentialsForIdentity).
package awscreds

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/chazuruo/drover/internal/errs"
)

const (
	// DefaultLoginProvider keys the Cognito logins map when the caller
	// does not name an OIDC provider.
	DefaultLoginProvider = "accounts.google.com"

	// sessionSeconds is the requested STS session duration.
	sessionSeconds = 3600
)

// ProcessOutput is the JSON document the AWS CLI expects on stdout from a
// credential_process helper.
type ProcessOutput struct {
	Version         int    `json:"Version"`
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken,omitempty"`
	Expiration      string `json:"Expiration,omitempty"`
}

// Request carries the inputs for one exchange.
type Request struct {
	// Region is the AWS region (required).
	Region string

	// IdentityPoolID selects the Cognito path.
	IdentityPoolID string

	// RoleARN selects the STS path. When both are set the role wins.
	RoleARN string

	// Token is the OIDC identity token (required).
	Token string

	// LoginProvider keys the Cognito logins map. Defaults to
	// DefaultLoginProvider.
	LoginProvider string

	// SessionName names the STS session. Defaults to "drover-session".
	SessionName string
}

// CognitoAPI is the subset of the Cognito Identity client the exchanger uses.
type CognitoAPI interface {
	GetId(ctx context.Context, in *cognitoidentity.GetIdInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, in *cognitoidentity.GetCredentialsForIdentityInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetCredentialsForIdentityOutput, error)
}

// STSAPI is the subset of the STS client the exchanger uses.
type STSAPI interface {
	AssumeRoleWithWebIdentity(ctx context.Context, in *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

// Exchanger performs token exchanges. Clients are built lazily from the
// default AWS config unless injected.
type Exchanger struct {
	cognito CognitoAPI
	sts     STSAPI
}

// Option configures an Exchanger.
type Option func(*Exchanger)

// WithCognitoClient overrides the Cognito Identity client.
func WithCognitoClient(c CognitoAPI) Option {
	return func(e *Exchanger) { e.cognito = c }
}

// WithSTSClient overrides the STS client.
func WithSTSClient(c STSAPI) Option {
	return func(e *Exchanger) { e.sts = c }
}

// New creates an Exchanger.
func New(opts ...Option) *Exchanger {
	e := &Exchanger{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exchange trades the request's OIDC token for temporary credentials.
// Missing inputs are reported as a ConfigError before any network call.
func (e *Exchanger) Exchange(ctx context.Context, req Request) (*ProcessOutput, error) {
	if req.Region == "" {
		return nil, &errs.ConfigError{Err: errors.New("aws.region is required")}
	}
	if req.Token == "" {
		return nil, &errs.ConfigError{Err: errors.New("an OIDC identity token is required")}
	}
	if req.RoleARN == "" && req.IdentityPoolID == "" {
		return nil, &errs.ConfigError{Err: errors.New("either aws.role_arn or aws.identity_pool_id is required")}
	}

	if req.RoleARN != "" {
		if e.sts == nil {
			cfg, err := e.loadConfig(ctx, req.Region)
			if err != nil {
				return nil, err
			}
			e.sts = sts.NewFromConfig(cfg)
		}
		return e.assumeRole(ctx, req)
	}

	if e.cognito == nil {
		cfg, err := e.loadConfig(ctx, req.Region)
		if err != nil {
			return nil, err
		}
		e.cognito = cognitoidentity.NewFromConfig(cfg)
	}
	return e.exchangeCognito(ctx, req)
}

func (e *Exchanger) loadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func (e *Exchanger) assumeRole(ctx context.Context, req Request) (*ProcessOutput, error) {
	session := req.SessionName
	if session == "" {
		session = "drover-session"
	}

	out, err := e.sts.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(req.RoleARN),
		RoleSessionName:  aws.String(session),
		WebIdentityToken: aws.String(req.Token),
		DurationSeconds:  aws.Int32(sessionSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assume role: %w", err)
	}
	c := out.Credentials
	if c == nil {
		return nil, errors.New("assume role returned no credentials")
	}

	result := &ProcessOutput{
		Version:         1,
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
	}
	if c.Expiration != nil {
		result.Expiration = c.Expiration.UTC().Format(time.RFC3339)
	}
	return result, nil
}

func (e *Exchanger) exchangeCognito(ctx context.Context, req Request) (*ProcessOutput, error) {
	provider := req.LoginProvider
	if provider == "" {
		provider = DefaultLoginProvider
	}
	logins := map[string]string{provider: req.Token}

	idOut, err := e.cognito.GetId(ctx, &cognitoidentity.GetIdInput{
		IdentityPoolId: aws.String(req.IdentityPoolID),
		Logins:         logins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get identity id: %w", err)
	}

	credsOut, err := e.cognito.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: idOut.IdentityId,
		Logins:     logins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}
	c := credsOut.Credentials
	if c == nil {
		return nil, errors.New("identity pool returned no credentials")
	}

	result := &ProcessOutput{
		Version:         1,
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretKey),
		SessionToken:    aws.ToString(c.SessionToken),
	}
	if c.Expiration != nil {
		result.Expiration = c.Expiration.UTC().Format(time.RFC3339)
	}
	return result, nil
}

// ResolveToken returns the OIDC identity token to exchange: the explicit
// value when non-empty, then DROVER_OIDC_TOKEN, then OIDC_ID_TOKEN, then
// the contents of the file named by DROVER_OIDC_TOKEN_FILE.
func ResolveToken(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if tok := os.Getenv("DROVER_OIDC_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok := os.Getenv("OIDC_ID_TOKEN"); tok != "" {
		return tok, nil
	}
	if path := os.Getenv("DROVER_OIDC_TOKEN_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &errs.ConfigError{Path: path, Err: err}
		}
		tok := strings.TrimSpace(string(data))
		if tok == "" {
			return "", &errs.ConfigError{Path: path, Err: errors.New("token file is empty")}
		}
		return tok, nil
	}
	return "", &errs.ConfigError{Err: errors.New("no OIDC token: set DROVER_OIDC_TOKEN or DROVER_OIDC_TOKEN_FILE")}
}
