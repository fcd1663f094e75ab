// Package paramstore reads provider secrets from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrNotFound is returned when the parameter does not exist.
var ErrNotFound = errors.New("paramstore: parameter not found")

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
// Config loading depends on this rather than *Client so it stays testable
// without AWS.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// ParameterName maps a secret name onto its parameter path, e.g.
// ("/gateway", "OPENAI_API_KEY") -> "/gateway/openai-api-key".
func ParameterName(prefix, secret string) string {
	kebab := strings.ToLower(strings.ReplaceAll(secret, "_", "-"))
	return path.Join("/", strings.TrimSpace(prefix), kebab)
}

// LoadSecrets looks up each secret under prefix. Missing parameters are
// skipped; any other failure aborts. Values stored as {"token":"..."} are
// unwrapped.
func LoadSecrets(ctx context.Context, g Getter, prefix string, secrets []string) (map[string]string, error) {
	if g == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	out := make(map[string]string, len(secrets))
	for _, secret := range secrets {
		raw, err := g.GetParameter(ctx, ParameterName(prefix, secret))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if v := unwrapToken(raw); v != "" {
			out[secret] = v
		}
	}
	return out, nil
}

func unwrapToken(raw string) string {
	raw = strings.TrimSpace(raw)
	var wrapped struct {
		Token string `json:"token"`
	}
	if strings.HasPrefix(raw, "{") && json.Unmarshal([]byte(raw), &wrapped) == nil && wrapped.Token != "" {
		return strings.TrimSpace(wrapped.Token)
	}
	return raw
}
