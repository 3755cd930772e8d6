package backends

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"kwrelay/internal/backends/ddb"
	"kwrelay/internal/backends/file"
	"kwrelay/internal/backends/memory"
	s3backend "kwrelay/internal/backends/s3"
	"kwrelay/internal/backends/sqlstore"
	"kwrelay/internal/ports"
	"kwrelay/internal/types"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	redisbackend "kwrelay/internal/backends/redis"
)

const (
	BackendFile  = "file"
	BackendDDB   = "ddb"
	BackendRedis = "redis"
	BackendS3    = "s3"
	BackendSQL   = "sql"
	BackendMem   = "memory"

	FileDirKey = "DATA_DIR"

	DDBEndpointKey = "DDB_ENDPOINT"
	DDBTableKey    = "DDB_TABLE"

	S3EndpointKey = "S3_ENDPOINT"
	S3BucketKey   = "S3_BUCKET_NAME"
	S3PrefixKey   = "S3_PREFIX"

	SNSEndpointKey = "SNS_ENDPOINT"

	SQLDriverKey = "SQL_DRIVER"
	SQLDSNKey    = "SQL_DSN"

	RedisHost  = "REDIS_HOST"
	RedisPort  = "REDIS_PORT"
	RedisUser  = "REDIS_USER"
	RedisPass  = "REDIS_PASS"
	RedisTLS   = "REDIS_SSL"
	RedisDBNum = "REDIS_DB_NUM"
)
const AmazonRootCA1PEM = `-----BEGIN CERTIFICATE-----
MIIDQTCCAimgAwIBAgITBmyfz5m/jAo54vB4ikPmljZbyjANBgkqhkiG9w0BAQsF
ADA5MQswCQYDVQQGEwJVUzEPMA0GA1UEChMGQW1hem9uMRkwFwYDVQQDExBBbWF6
b24gUm9vdCBDQSAxMB4XDTE1MDUyNjAwMDAwMFoXDTM4MDExNzAwMDAwMFowOTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoTBkFtYXpvbjEZMBcGA1UEAxMQQW1hem9uIFJv
b3QgQ0EgMTCCASIwDQYJKoZIhvcNAQEBBQADggEPADCCAQoCggEBALJ4gHHKeNXj
ca9HgFB0fW7Y14h29Jlo91ghYPl0hAEvrAIthtOgQ3pOsqTQNroBvo3bSMgHFzZM
9O6II8c+6zf1tRn4SWiw3te5djgdYZ6k/oI2peVKVuRF4fn9tBb6dNqcmzU5L/qw
IFAGbHrQgLKm+a/sRxmPUDgH3KKHOVj4utWp+UhnMJbulHheb4mjUcAwhmahRWa6
VOujw5H5SNz/0egwLX0tdHA114gk957EWW67c4cX8jJGKLhD+rcdqsq08p8kDi1L
93FcXmn/6pUCyziKrlA4b9v7LWIbxcceVOF34GfID5yHI9Y/QCB/IIDEgEw+OyQm
jgSubJrIqg0CAwEAAaNCMEAwDwYDVR0TAQH/BAUwAwEB/zAOBgNVHQ8BAf8EBAMC
AYYwHQYDVR0OBBYEFIQYzIU07LwMlJQuCFmcx7IQTgoIMA0GCSqGSIb3DQEBCwUA
A4IBAQCY8jdaQZChGsV2USggNiMOruYou6r4lK5IpDB/G/wkjUu0yKGX9rbxenDI
U5PMCCjjmCXPI6T53iHTfIUJrU6adTrCC2qJeHZERxhlbI1Bjjt/msv0tadQ1wUs
N+gDS63pYaACbvXy8MWy7Vu33PqUXHeeE6V/Uq2V8viTO96LXFvKWlJbYK8U90vv
o/ufQJVtMVT8QtPHRh8jrdkPSHCa2XV4cdFyQzR1bldZwgJcJmApzyMZFo6IQ6XU
5MsI+yMRQ+hDKXJioaldXgjUkK642M4UwtBV8ob2xJNDd2ZhwLnoQdeXeGADbkpy
rqXRfboQnoZsG4q5WTP468SQvvG5
-----END CERTIFICATE-----`

// RegistryStoreFromEnv constructs the RegistryStore named by backend ("file", "redis", "ddb",
// "s3", "sql" or "memory"), reading backend specific settings from the environment.
// An empty backend selects BackendFile: one flat text file per resource under DATA_DIR.
func RegistryStoreFromEnv(backend string) (store ports.RegistryStore, err error) {
	fields := log.Fields{"backend": backend}
	switch backend {
	case BackendRedis:
		var redisClient *redis.Client
		redisClient, err = redisClientFromEnv()
		if err != nil {
			return nil, err
		}
		store = redisbackend.NewRegistryStore(redisClient)

	case BackendDDB:
		var ddbClient *dynamodb.Client
		ddbClient, err = ddbClientFromEnv()
		if err != nil {
			return nil, err
		}
		table := getenv(DDBTableKey, "kwrelay_registries")
		fields["table"] = table
		store, err = ddb.NewRegistryStore(table, ddbClient)
		if err != nil {
			return nil, err
		}

	case BackendS3:
		bucket := os.Getenv(S3BucketKey)
		if bucket == "" {
			return nil, types.Err(types.ErrStartupConfig, nil, "%s must be set for the s3 backend", S3BucketKey)
		}
		var s3Client *s3.Client
		s3Client, err = s3ClientFromEnv()
		if err != nil {
			return nil, err
		}
		fields["bucket"] = bucket
		store = s3backend.NewStore(s3Client, bucket, os.Getenv(S3PrefixKey))

	case BackendSQL:
		driver := getenv(SQLDriverKey, sqlstore.DriverSQLite)
		dsn := getenv(SQLDSNKey, "kwrelay.db")
		fields["driver"] = driver
		store, err = sqlstore.Open(driver, dsn)
		if err != nil {
			return nil, err
		}

	case BackendMem:
		log.Warn("memory registry store selected; registries are lost on restart")
		store = memory.NewStore()

	case BackendFile, "":
		dir := os.Getenv(FileDirKey)
		fields["dir"] = dir
		store = file.NewStore(dir)

	default:
		return nil, types.Err(types.ErrInvalidBackend, nil, "unknown store backend %q", backend)
	}
	log.WithFields(fields).Info("Use registry store")
	return
}

// ddbClientFromEnv creates a DynamoDB client from environment variables, if any.
func ddbClientFromEnv() (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, err
	}
	endpoint := os.Getenv(DDBEndpointKey)
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			// This is used for testing only locally
			o.BaseEndpoint = aws.String(endpoint)
			o.Region = getenv("AWS_REGION", "us-east-1")
			o.Credentials = localCredentials()
		}
	}), nil
}

// s3ClientFromEnv creates an S3 client. A custom endpoint (minio, localstack) switches to
// path-style addressing.
func s3ClientFromEnv() (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, err
	}
	endpoint := os.Getenv(S3EndpointKey)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
			o.Region = getenv("AWS_REGION", "us-east-1")
			o.Credentials = localCredentials()
		}
	}), nil
}

// SNSClientFromEnv creates the SNS client used by the sns publisher. SNS_ENDPOINT points it at a
// local emulator.
func SNSClientFromEnv(ctx context.Context) (*sns.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	endpoint := os.Getenv(SNSEndpointKey)
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = localCredentials()
		}
	}), nil
}

func localCredentials() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(
		getenv("AWS_ACCESS_KEY_ID", "x"),
		getenv("AWS_SECRET_ACCESS_KEY", "x"),
		"",
	)
}

// redisClientFromEnv creates a Redis client from environment variables, if any.
func redisClientFromEnv() (*redis.Client, error) {
	host := getenv(RedisHost, "localhost")
	port := getenv(RedisPort, "6379")
	user := os.Getenv(RedisUser)
	pass := os.Getenv(RedisPass)
	tlsEnabled := parseBoolean(getenv(RedisTLS, "false"))
	dbNumStr := getenv(RedisDBNum, "0")
	dbNum, err := strconv.Atoi(dbNumStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis DB number: %w", err)
	}

	var tlsConfig *tls.Config
	if tlsEnabled {
		// Create a CA certificate pool and add our CA certificate
		caCerts := x509.NewCertPool()
		if !caCerts.AppendCertsFromPEM([]byte(AmazonRootCA1PEM)) {
			return nil, fmt.Errorf("failed to retrieve CA certificate")
		}
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    caCerts,
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:      fmt.Sprintf("%s:%s", host, port),
		Username:  user,
		Password:  pass,
		DB:        dbNum,
		TLSConfig: tlsConfig,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return redisClient, nil
}

// getenv retrieves the value of the environment variable named by the key.
func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func parseBoolean(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}
