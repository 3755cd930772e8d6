package ddb

import (
	"context"
	"errors"
	"kwrelay/internal/backends/flat"
	"kwrelay/internal/types"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RegistryStore keeps one item per registry. The item holds the flat text snapshot, so one
// UpdateItem replaces the whole set, and a ver counter that every write increments.
type RegistryStore struct {
	table string
	cli   *dynamodb.Client
}

type registryItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Snapshot  string `dynamodbav:"snapshot"`
	Count     int    `dynamodbav:"count"`
	UpdatedAt int64  `dynamodbav:"updated_at"`
	Version   int64  `dynamodbav:"ver"`
}

// NewRegistryStore creates the table when it is missing.
func NewRegistryStore(table string, cli *dynamodb.Client) (*RegistryStore, error) {
	if err := createTableIfNotExists(cli, table); err != nil {
		return nil, err
	}
	return &RegistryStore{table: table, cli: cli}, nil
}

func (s *RegistryStore) Load(ctx context.Context, resource string) ([]string, error) {
	entries, _, err := s.LoadVersion(ctx, resource)
	return entries, err
}

// LoadVersion returns the snapshot and its ver attribute. Items written before ver existed
// report "0".
func (s *RegistryStore) LoadVersion(ctx context.Context, resource string) ([]string, string, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            registryKey(resource),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, "", types.Err(types.ErrPersistence, err, "get %s", resource)
	}
	if out.Item == nil {
		return []string{}, "", nil
	}
	var it registryItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, "", types.Err(types.ErrPersistence, err, "decode %s", resource)
	}
	return flat.Parse([]byte(it.Snapshot)), strconv.FormatInt(it.Version, 10), nil
}

func (s *RegistryStore) Save(ctx context.Context, resource string, entries []string) error {
	return s.update(ctx, resource, entries, nil)
}

// SaveIfVersion writes only when the item's ver still equals version, or when the item is
// still missing for version "".
func (s *RegistryStore) SaveIfVersion(ctx context.Context, resource string, entries []string, version string) error {
	return s.update(ctx, resource, entries, &version)
}

func (s *RegistryStore) update(ctx context.Context, resource string, entries []string, version *string) error {
	in, err := updateInput(s.table, resource, entries, version, time.Now())
	if err != nil {
		return err
	}
	_, err = s.cli.UpdateItem(ctx, in)
	var ccf *ddbTypes.ConditionalCheckFailedException
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ccf):
		return types.Err(types.ErrConflict, err, "%s is no longer at version %q", resource, *version)
	default:
		return types.Err(types.ErrPersistence, err, "update %s", resource)
	}
}

// updateInput replaces the snapshot and bumps ver in one UpdateItem. A non-nil version adds
// the optimistic check.
func updateInput(table, resource string, entries []string, version *string, now time.Time) (*dynamodb.UpdateItemInput, error) {
	in := &dynamodb.UpdateItemInput{
		TableName:        &table,
		Key:              registryKey(resource),
		UpdateExpression: awsString("SET #snapshot = :snapshot, #count = :count, #updated = :updated ADD #ver :one"),
		ExpressionAttributeNames: map[string]string{
			"#snapshot": "snapshot",
			"#count":    "count",
			"#updated":  "updated_at",
			"#ver":      "ver",
		},
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":snapshot": &ddbTypes.AttributeValueMemberS{Value: string(flat.Format(entries))},
			":count":    &ddbTypes.AttributeValueMemberN{Value: strconv.Itoa(len(entries))},
			":updated":  &ddbTypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":one":      &ddbTypes.AttributeValueMemberN{Value: "1"},
		},
	}
	if version == nil {
		return in, nil
	}
	if *version == "" {
		in.ConditionExpression = awsString("attribute_not_exists(PK)")
		return in, nil
	}
	if _, err := strconv.ParseInt(*version, 10, 64); err != nil {
		return nil, types.Err(types.ErrInvalidArgument, err, "version %q of %s", *version, resource)
	}
	cond := "#ver = :expected"
	if *version == "0" {
		cond = "attribute_not_exists(#ver) OR " + cond
	}
	in.ConditionExpression = awsString(cond)
	in.ExpressionAttributeValues[":expected"] = &ddbTypes.AttributeValueMemberN{Value: *version}
	return in, nil
}

func registryKey(resource string) map[string]ddbTypes.AttributeValue {
	return map[string]ddbTypes.AttributeValue{
		"PK": &ddbTypes.AttributeValueMemberS{Value: pkRegistry(resource)},
		"SK": &ddbTypes.AttributeValueMemberS{Value: skSnapshot()},
	}
}
