package awso

import (
	"context"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"sync"
)

// ClientInvalidated is returned by Check when a call failed because the
// credentials behind the cached client expired. The next Client call builds a
// fresh one.
var ClientInvalidated = errors.New("aws client invalidated")

var expiredCodes = map[string]bool{
	"ExpiredToken":          true,
	"ExpiredTokenException": true,
	"RequestExpired":        true,
}

type ClientProvider[T any] struct {
	buildClient func(cfg aws.Config) *T
	region      string
	loadConfig  func(ctx context.Context) (aws.Config, error)

	mu     sync.Mutex
	client *T
}

func NewClientProvider[T any](region string, buildClient func(cfg aws.Config) *T) *ClientProvider[T] {
	return &ClientProvider[T]{
		buildClient: buildClient,
		region:      region,
		loadConfig: func(ctx context.Context) (aws.Config, error) {
			return config.LoadDefaultConfig(ctx)
		},
	}
}

func (cp *ClientProvider[T]) Client(ctx context.Context) (*T, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.client == nil {
		cfg, err := cp.loadConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		cfg.Region = cp.region
		cp.client = cp.buildClient(cfg)
	}
	return cp.client, nil
}

// Check drops the cached client if err means the credentials expired.
func (cp *ClientProvider[T]) Check(err error) error {
	if !IsExpired(err) {
		return err
	}
	cp.mu.Lock()
	cp.client = nil
	cp.mu.Unlock()
	return fmt.Errorf("%w: %w", ClientInvalidated, err)
}

func IsExpired(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return expiredCodes[apiErr.ErrorCode()]
	}
	return false
}

// CallerIdentity returns the ARN the provider's credentials resolve to.
func CallerIdentity(ctx context.Context, cp *ClientProvider[sts.Client]) (string, error) {
	client, err := cp.Client(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", cp.Check(err)
	}
	return aws.ToString(resp.Arn), nil
}
