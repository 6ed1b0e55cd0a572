// Package lambdaboot provides the cold-start bootstrap shared by the
// pipeline's Lambda entry points.
//
// A Lambda's init() is a short composition of these helpers: AWS config,
// S3, the optional DynamoDB run index, the Gemini key from SSM, and
// startup logging.
package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-risk-analyzer/internal/logging"
	"github.com/fpang/video-risk-analyzer/internal/store"
)

// DefaultGeminiKeyParam is the SSM parameter holding the Gemini API key.
const DefaultGeminiKeyParam = "/video-risk-analyzer/prod/gemini-api-key"

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds S3 client, presigner, and the fallback bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// SSMAPI is the subset of *ssm.Client used to read secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ SSMAPI = (*ssm.Client)(nil)

// LoadDotEnv loads a local .env file into the environment for runs outside
// Lambda. Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Environment loaded from file")
	return nil
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client and presigner. The bucket named by
// bucketEnvVar is optional: the pipeline writes into whichever bucket the
// trigger names.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	client := s3.NewFromConfig(cfg)
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Debug().Str("envVar", bucketEnvVar).Msg("No fallback bucket configured")
	}
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// InitDynamoOptional creates the run index store if tableName is set.
// Returns nil (with a warning) if not configured.
func InitDynamoOptional(cfg aws.Config, tableName string) *store.RunStore {
	if tableName == "" {
		log.Warn().Msg("Run table not set, run index disabled")
		return nil
	}
	return store.NewRunStore(dynamodb.NewFromConfig(cfg), tableName)
}

// FetchParameter reads a decrypted SSM parameter.
func FetchParameter(ctx context.Context, client SSMAPI, name string) (string, error) {
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s is empty", name)
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("Parameter loaded from SSM")
	return aws.ToString(result.Parameter.Value), nil
}

// LoadGeminiKey returns the Gemini API key from GEMINI_API_KEY, or from the
// SSM parameter named by SSM_API_KEY_PARAM. Fatals on error.
func LoadGeminiKey(client SSMAPI) string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	param := logging.EnvOrDefault("SSM_API_KEY_PARAM", DefaultGeminiKeyParam)
	key, err := FetchParameter(context.Background(), client, param)
	if err != nil {
		log.Fatal().Err(err).Str("param", param).Msg("Failed to read API key from SSM")
	}
	os.Setenv("GEMINI_API_KEY", key)
	return key
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
