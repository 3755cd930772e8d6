package pub

import (
	"context"
	"kwrelay/internal/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goccy/go-json"
)

// SNSAPI is the subset of the SNS client used for publishing.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsPub struct{ cli SNSAPI }

// NewSNS publishes notifications as JSON documents to the topic ARN given as target.
func NewSNS(c SNSAPI) *snsPub { return &snsPub{cli: c} }

func (s *snsPub) Publish(ctx context.Context, arn string, n types.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = s.cli.Publish(ctx, &sns.PublishInput{
		TopicArn: &arn,
		Subject:  aws.String("Keyword match in " + truncate(n.ChatTitle, 60)),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
		},
	})
	return err
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
