//go:build lambda

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"kwrelay/internal/api"
	"kwrelay/internal/backends"
	"kwrelay/internal/ports"
	"kwrelay/internal/pub"
	"kwrelay/internal/relay"
	"kwrelay/internal/types"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// LambdaHandler relays chat updates queued on SQS, for example Telegram webhook deliveries
// forwarded by API Gateway. Command replies cannot reach the chat from here and are logged.
type LambdaHandler struct {
	Ingest func(ctx context.Context, payload map[string]any) (api.Ingested, error)
	APIKey string
}

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	err := godotenv.Load(envFile)
	if err != nil {
		log.Info("The .env file not found.")
	}
	log.SetFormatter(&log.JSONFormatter{})

	ctx := context.Background()
	cfg, err := types.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// The queue carries raw updates; forwards always go to SNS unless logging is requested.
	cfg.Transport = types.TransportHTTP
	if cfg.Publisher == "" {
		cfg.Publisher = types.PublisherSNS
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	store, err := backends.RegistryStoreFromEnv(cfg.StoreBackend)
	if err != nil {
		log.Fatalf("Failed to initialize registry store: %v", err)
	}
	var publisher ports.Publisher = pub.NewLog(log.StandardLogger())
	if cfg.Publisher == types.PublisherSNS {
		snsClient, err := backends.SNSClientFromEnv(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize SNS client: %v", err)
		}
		publisher = pub.NewSNS(snsClient)
	}
	r, err := relay.New(ctx, cfg, store, publisher)
	if err != nil {
		log.Fatalf("Failed to initialize relay: %v", err)
	}

	h := api.NewHandler(r.Dispatcher, r.Matcher, cfg.Token, cfg.Webhook)
	handler := &LambdaHandler{Ingest: h.Ingest, APIKey: cfg.Token}
	lambda.Start(handler.HandleSQSEvent)
}

// HandleSQSEvent processes a batch and reports the records that should be redelivered.
func (h *LambdaHandler) HandleSQSEvent(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	log.Infof("Processing batch of %d messages", len(sqsEvent.Records))

	var batchItemFailures []events.SQSBatchItemFailure
	for _, record := range sqsEvent.Records {
		err := h.processMessage(ctx, record)
		switch {
		case err == nil:
		case errors.Is(err, types.ErrInvalidArgument), errors.Is(err, types.ErrAuthorizationDenied):
			// redelivery cannot fix these
			log.WithError(err).Warnf("Dropping message %s", record.MessageId)
		default:
			log.WithError(err).Errorf("Failed to process message %s", record.MessageId)
			batchItemFailures = append(batchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return events.SQSEventResponse{
		BatchItemFailures: batchItemFailures,
	}, nil
}

func (h *LambdaHandler) processMessage(ctx context.Context, record events.SQSMessage) error {
	key := ""
	if attr, ok := record.MessageAttributes[types.APIKeyHdrName]; ok && attr.StringValue != nil {
		key = *attr.StringValue
	}
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.APIKey)) != 1 {
		return types.Err(types.ErrAuthorizationDenied, nil, "missing or wrong %s attribute", types.APIKeyHdrName)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
		return types.Err(types.ErrInvalidArgument, err, "parse message body")
	}

	res, err := h.Ingest(ctx, payload)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	log.WithFields(log.Fields{
		"status":    res.Status,
		"reply":     res.Reply,
		"messageID": record.MessageId,
		"groupID":   record.Attributes["MessageGroupId"],
	}).Debug("Message processed")
	return nil
}
