// Package secrets resolves credentials held in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/devine/vecgate/internal/config"
)

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver reads secret strings by id.
type Resolver struct {
	client SecretsAPI
}

// NewResolver builds a Resolver from the default AWS credential chain.
func NewResolver(ctx context.Context) (*Resolver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewResolverWithClient(secretsmanager.NewFromConfig(awsCfg)), nil
}

// NewResolverWithClient wraps an existing client.
func NewResolverWithClient(client SecretsAPI) *Resolver {
	return &Resolver{client: client}
}

// String returns the SecretString of the secret id.
func (r *Resolver) String(ctx context.Context, id string) (string, error) {
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", id, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("secret %s has no string value", id)
	}
	return *out.SecretString, nil
}

// DSN reads the secret id and turns it into a PostgreSQL connection string.
func (r *Resolver) DSN(ctx context.Context, id string) (string, error) {
	s, err := r.String(ctx, id)
	if err != nil {
		return "", err
	}
	dsn, err := ParseDSN(s)
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", id, err)
	}
	return dsn, nil
}

// rdsSecret is the JSON layout Secrets Manager uses for RDS credentials.
type rdsSecret struct {
	DSN      string          `json:"dsn"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	Host     string          `json:"host"`
	Port     json.RawMessage `json:"port"`
	DBName   string          `json:"dbname"`
}

// ParseDSN accepts a secret holding either a plain connection string, a JSON
// object with a "dsn" key, or RDS-style credentials
// ({"username","password","host","port","dbname"}).
func ParseDSN(secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if !strings.HasPrefix(secret, "{") {
		return secret, nil
	}
	var s rdsSecret
	if err := json.Unmarshal([]byte(secret), &s); err != nil {
		return "", fmt.Errorf("invalid dsn secret: %w", err)
	}
	if s.DSN != "" {
		return s.DSN, nil
	}
	if s.Host == "" || s.Username == "" {
		return "", fmt.Errorf("dsn secret needs either dsn or host and username")
	}
	port := "5432"
	if len(s.Port) > 0 {
		raw := strings.Trim(string(s.Port), `"`)
		if _, err := strconv.Atoi(raw); err != nil {
			return "", fmt.Errorf("invalid port %s in dsn secret", s.Port)
		}
		port = raw
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.Username, s.Password),
		Host:   net.JoinHostPort(s.Host, port),
		Path:   "/" + s.DBName,
	}
	return u.String(), nil
}

// Apply fills cfg.Storage.DSN and cfg.Embedding.APIKey from their secret ids.
// Values already present in cfg are kept.
func Apply(ctx context.Context, r *Resolver, cfg *config.Config) error {
	if cfg.Storage.DSN == "" && cfg.Storage.DSNSecretID != "" {
		dsn, err := r.DSN(ctx, cfg.Storage.DSNSecretID)
		if err != nil {
			return err
		}
		cfg.Storage.DSN = dsn
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.APIKeySecretID != "" {
		key, err := r.String(ctx, cfg.Embedding.APIKeySecretID)
		if err != nil {
			return err
		}
		cfg.Embedding.APIKey = strings.TrimSpace(key)
	}
	return nil
}

// Needed reports whether cfg references any secret that Apply would resolve.
func Needed(cfg *config.Config) bool {
	return (cfg.Storage.DSN == "" && cfg.Storage.DSNSecretID != "") ||
		(cfg.Embedding.APIKey == "" && cfg.Embedding.APIKeySecretID != "")
}
