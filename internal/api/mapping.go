package api

import (
	"fmt"
	"kwrelay/internal/types"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

// MapUpdate extracts a ChatMessage from a decoded JSON update using the expressions in m.
// Fields whose expression selects nothing are left empty.
func MapUpdate(m types.WebhookConfig, payload map[string]any) (types.ChatMessage, error) {
	var msg types.ChatMessage
	fields := []struct {
		expr string
		dst  *string
	}{
		{m.TextExpr, &msg.Text},
		{m.UsernameExpr, &msg.Username},
		{m.ChatIDExpr, &msg.Chat.ID},
		{m.ChatTitleExpr, &msg.Chat.Title},
	}
	for _, f := range fields {
		if f.expr == "" {
			continue
		}
		v, err := EvalString(f.expr, payload)
		if err != nil {
			return types.ChatMessage{}, err
		}
		if v != nil {
			*f.dst = *v
		}
	}
	return msg, nil
}

// EvalAny returns the raw value selected by the JMESPath expression, or nil when it selects
// nothing.
func EvalAny(expression string, payload map[string]any) (any, error) {
	v, err := jmespath.Search(expression, payload)
	if err != nil {
		return nil, fmt.Errorf("jmespath %q: %w", expression, err)
	}
	return v, nil
}

// EvalString coerces the selection to string; non-strings are JSON-encoded.
func EvalString(expression string, payload map[string]any) (*string, error) {
	v, err := EvalAny(expression, payload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return &t, nil
	default:
		b, _ := json.Marshal(t)
		bs := string(b)
		return &bs, nil
	}
}
