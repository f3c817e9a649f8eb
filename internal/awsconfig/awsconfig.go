// Package awsconfig loads the shared AWS SDK configuration used by the
// DynamoDB, SNS and Secrets Manager clients.
package awsconfig

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Config holds AWS connection parameters.
type Config struct {
	// Region is the AWS region (e.g. "eu-west-1").
	Region string

	// Endpoint overrides the default AWS endpoint. Set it to a LocalStack URL
	// (e.g. "http://localhost:4566") for local development; static test
	// credentials are used in that case.
	Endpoint string

	// Timeout is the HTTP client timeout for AWS requests.
	Timeout time.Duration
}

// Load resolves the AWS configuration from the default credential chain.
func Load(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Timeout > 0 {
		awsCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return awsCfg, nil
}

// BaseEndpoint returns a pointer to endpoint, or nil when it is empty. Service
// clients assign it to their Options.BaseEndpoint.
func BaseEndpoint(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return &endpoint
}
