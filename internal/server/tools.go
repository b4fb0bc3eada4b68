package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sevir/wappa/pkg/models"
)

var namespaceItems = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"name":     map[string]interface{}{"type": "string"},
		"scale":    map[string]interface{}{"type": "number"},
		"features": map[string]interface{}{"type": "string"},
	},
	"required": []string{"features"},
}

// SendExampleTool handles the vw_send_example MCP tool.
type SendExampleTool struct {
	learner Learner
}

// NewSendExampleTool creates a SendExampleTool.
func NewSendExampleTool(l Learner) *SendExampleTool {
	return &SendExampleTool{learner: l}
}

// Definition returns the MCP tool definition for registration.
func (t *SendExampleTool) Definition() mcp.Tool {
	return mcp.NewTool("vw_send_example",
		mcp.WithDescription(
			"Send one training example to vw and return its prediction for it. "+
				"Either give `raw`, a complete vw input line, or build the line from "+
				"`label`, `features` and `namespaces`.",
		),
		mcp.WithNumber("label", mcp.Description("Response value of the example.")),
		mcp.WithNumber("importance", mcp.Description("Importance weight; ignored without a label.")),
		mcp.WithNumber("base", mcp.Description("Base prediction; ignored without an importance.")),
		mcp.WithString("tag", mcp.Description("Tag echoed back by vw.")),
		mcp.WithString("features", mcp.Description(`Anonymous namespace features, e.g. "price:0.23 sqft:0.25 old".`)),
		mcp.WithArray("namespaces",
			mcp.Description("Named feature blocks: objects with name, optional scale, and features."),
			mcp.Items(namespaceItems),
		),
		mcp.WithString("raw", mcp.Description("A literal vw line; overrides every other argument.")),
	)
}

// Handle processes the vw_send_example tool call.
func (t *SendExampleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	features := featuresArg(req, "features")
	namespaces, err := namespacesArg(req, "namespaces")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.learner.Train(models.ExampleRequest{
		Label:      floatArg(req, "label"),
		Importance: floatArg(req, "importance"),
		Base:       floatArg(req, "base"),
		Tag:        req.GetString("tag", ""),
		Features:   features,
		Namespaces: namespaces,
		Raw:        req.GetString("raw", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

// PredictTool handles the vw_predict MCP tool.
type PredictTool struct {
	learner Learner
}

// NewPredictTool creates a PredictTool.
func NewPredictTool(l Learner) *PredictTool {
	return &PredictTool{learner: l}
}

// Definition returns the MCP tool definition for registration.
func (t *PredictTool) Definition() mcp.Tool {
	return mcp.NewTool("vw_predict",
		mcp.WithDescription("Score an unlabelled example. vw does not learn from it."),
		mcp.WithString("features",
			mcp.Required(),
			mcp.Description(`Anonymous namespace features, e.g. "price:0.23 sqft:0.25 old".`),
		),
		mcp.WithArray("namespaces",
			mcp.Description("Named feature blocks: objects with name, optional scale, and features."),
			mcp.Items(namespaceItems),
		),
		mcp.WithString("tag", mcp.Description("Tag echoed back by vw.")),
	)
}

// Handle processes the vw_predict tool call.
func (t *PredictTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	features := featuresArg(req, "features")
	if features == nil {
		features = []models.FeatureSpec{}
	}
	namespaces, err := namespacesArg(req, "namespaces")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.learner.Predict(models.PredictRequest{
		Tag:        req.GetString("tag", ""),
		Features:   features,
		Namespaces: namespaces,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

// SaveModelTool handles the vw_save_model MCP tool.
type SaveModelTool struct {
	learner Learner
}

// NewSaveModelTool creates a SaveModelTool.
func NewSaveModelTool(l Learner) *SaveModelTool {
	return &SaveModelTool{learner: l}
}

// Definition returns the MCP tool definition for registration.
func (t *SaveModelTool) Definition() mcp.Tool {
	return mcp.NewTool("vw_save_model",
		mcp.WithDescription(
			"Ask vw to write its model to disk and record a checkpoint. vw writes "+
				"asynchronously; pass `wait` to block until the file appears.",
		),
		mcp.WithString("path", mcp.Description("Target file. Defaults to the checkpoint directory. No spaces, ':' or '|'.")),
		mcp.WithArray("tags",
			mcp.Description("Tags stored with the checkpoint."),
			mcp.Items(map[string]interface{}{"type": "string"}),
		),
		mcp.WithString("wait", mcp.Description(`How long to wait for the file, e.g. "2s".`)),
	)
}

// Handle processes the vw_save_model tool call.
func (t *SaveModelTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var wait time.Duration
	if raw := strings.TrimSpace(req.GetString("wait", "")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid wait %q", raw)), nil
		}
		wait = d
	}

	cp, err := t.learner.Save(ctx, models.SaveRequest{
		Path: req.GetString("path", ""),
		Tags: stringSliceArg(req, "tags"),
		Wait: models.Duration(wait),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(cp)
}

// ListCheckpointsTool handles the vw_list_checkpoints MCP tool.
type ListCheckpointsTool struct {
	learner Learner
}

// NewListCheckpointsTool creates a ListCheckpointsTool.
func NewListCheckpointsTool(l Learner) *ListCheckpointsTool {
	return &ListCheckpointsTool{learner: l}
}

// Definition returns the MCP tool definition for registration.
func (t *ListCheckpointsTool) Definition() mcp.Tool {
	return mcp.NewTool("vw_list_checkpoints",
		mcp.WithDescription("List saved model checkpoints, newest first."),
		mcp.WithString("status", mcp.Description("Comma-separated statuses: pending, written, missing.")),
		mcp.WithArray("tags",
			mcp.Description("Only checkpoints carrying all of these tags."),
			mcp.Items(map[string]interface{}{"type": "string"}),
		),
		mcp.WithString("session_id", mcp.Description("Only checkpoints written by this engine session.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of checkpoints.")),
		mcp.WithNumber("offset", mcp.Description("Checkpoints to skip.")),
	)
}

// Handle processes the vw_list_checkpoints tool call.
func (t *ListCheckpointsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var statuses []models.CheckpointStatus
	for _, part := range strings.Split(req.GetString("status", ""), ",") {
		st := models.CheckpointStatus(strings.TrimSpace(part))
		if st == "" {
			continue
		}
		if !models.ValidCheckpointStatus(st) {
			return mcp.NewToolResultError(fmt.Sprintf("invalid status %q", st)), nil
		}
		statuses = append(statuses, st)
	}

	checkpoints, err := t.learner.ListCheckpoints(models.ListRequest{
		SessionID: req.GetString("session_id", ""),
		Status:    statuses,
		Tags:      stringSliceArg(req, "tags"),
		Limit:     intArg(req, "limit", 0),
		Offset:    intArg(req, "offset", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}

	now := time.Now()
	summaries := make([]models.CheckpointSummary, 0, len(checkpoints))
	for _, cp := range checkpoints {
		summaries = append(summaries, cp.ToSummary(now))
	}
	return jsonResult(map[string]interface{}{
		"checkpoints": summaries,
		"count":       len(summaries),
	})
}

// SessionInfoTool handles the vw_session_info MCP tool.
type SessionInfoTool struct {
	learner Learner
}

// NewSessionInfoTool creates a SessionInfoTool.
func NewSessionInfoTool(l Learner) *SessionInfoTool {
	return &SessionInfoTool{learner: l}
}

// Definition returns the MCP tool definition for registration.
func (t *SessionInfoTool) Definition() mcp.Tool {
	return mcp.NewTool("vw_session_info",
		mcp.WithDescription("Show the vw command line, transport, state and counters of the hosted session."),
	)
}

// Handle processes the vw_session_info tool call.
func (t *SessionInfoTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.learner.Info())
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// floatArg returns nil when key is missing or not a number.
func floatArg(req mcp.CallToolRequest, key string) *float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

// intArg extracts an integer argument (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// stringSliceArg accepts a JSON array of strings or a comma-separated string.
func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// featuresArg parses "a b:0.5" into features. nil means the argument was
// absent.
func featuresArg(req mcp.CallToolRequest, key string) []models.FeatureSpec {
	raw, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return parseFeatures(raw)
}

// parseFeatures splits on whitespace. A token's value follows its last
// colon; if that suffix is not a number the whole token is the label.
func parseFeatures(raw string) []models.FeatureSpec {
	tokens := strings.Fields(raw)
	features := make([]models.FeatureSpec, 0, len(tokens))
	for _, tok := range tokens {
		f := models.FeatureSpec{Label: tok}
		if i := strings.LastIndex(tok, ":"); i > 0 {
			if v, err := strconv.ParseFloat(tok[i+1:], 64); err == nil {
				f.Label = tok[:i]
				f.Value = &v
			}
		}
		features = append(features, f)
	}
	return features
}

func namespacesArg(req mcp.CallToolRequest, key string) ([]models.NamespaceSpec, error) {
	items, ok := req.GetArguments()[key].([]interface{})
	if !ok {
		return nil, nil
	}

	namespaces := make([]models.NamespaceSpec, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("namespace %d must be an object", i)
		}
		ns := models.NamespaceSpec{}
		ns.Name, _ = obj["name"].(string)
		ns.Scale, _ = obj["scale"].(float64)
		text, _ := obj["features"].(string)
		ns.Features = parseFeatures(text)
		namespaces = append(namespaces, ns)
	}
	return namespaces, nil
}
