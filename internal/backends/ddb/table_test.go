package ddb

import (
	"kwrelay/internal/types"
	"testing"
	"time"

	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "REGISTRY#keywords.txt", pkRegistry("keywords.txt"))
	assert.Equal(t, "SNAPSHOT", skSnapshot())
}

func TestUpdateInputUnconditional(t *testing.T) {
	in, err := updateInput("kwrelay", "keywords.txt", []string{"moon", "rocket"}, nil, time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Nil(t, in.ConditionExpression)
	assert.Equal(t, "SET #snapshot = :snapshot, #count = :count, #updated = :updated ADD #ver :one", *in.UpdateExpression)
	assert.Equal(t, &ddbTypes.AttributeValueMemberN{Value: "2"}, in.ExpressionAttributeValues[":count"])
	assert.Equal(t, &ddbTypes.AttributeValueMemberN{Value: "1700000000"}, in.ExpressionAttributeValues[":updated"])
}

func TestUpdateInputVersionChecks(t *testing.T) {
	now := time.Now()
	cases := map[string]string{
		"":  "attribute_not_exists(PK)",
		"0": "attribute_not_exists(#ver) OR #ver = :expected",
		"7": "#ver = :expected",
	}
	for version, cond := range cases {
		v := version
		in, err := updateInput("kwrelay", "users.txt", nil, &v, now)
		require.NoError(t, err, version)
		assert.Equal(t, cond, *in.ConditionExpression, version)
		if version != "" {
			assert.Equal(t, &ddbTypes.AttributeValueMemberN{Value: version}, in.ExpressionAttributeValues[":expected"])
		} else {
			assert.NotContains(t, in.ExpressionAttributeValues, ":expected")
		}
	}

	bad := "etag"
	_, err := updateInput("kwrelay", "users.txt", nil, &bad, now)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
