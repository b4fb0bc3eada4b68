package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sevir/wappa/pkg/models"
)

func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

func getResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func callTool(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestSendExampleTool(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	tool := NewSendExampleTool(srv.learner)
	if def := tool.Definition(); def.Name != "vw_send_example" {
		t.Errorf("expected tool name vw_send_example, got %q", def.Name)
	}

	result := callTool(t, tool.Handle, map[string]interface{}{
		"label":    float64(1),
		"tag":      "r1",
		"features": "price:0.25 old",
		"namespaces": []interface{}{
			map[string]interface{}{"name": "ctx", "scale": float64(2), "features": "hour:3"},
		},
	})
	if isErrorResult(result) {
		t.Fatalf("unexpected tool error: %s", getResultText(result))
	}

	var res models.PredictionResult
	if err := json.Unmarshal([]byte(getResultText(result)), &res); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	want := `1.0 'r1|ctx:2.0 hour:3.0 | price:0.25 old `
	if res.Line != want {
		t.Errorf("expected line %q, got %q", want, res.Line)
	}
}

func TestSendExampleTool_InvalidNamespace(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	result := callTool(t, NewSendExampleTool(srv.learner).Handle, map[string]interface{}{
		"namespaces": []interface{}{"not an object"},
	})
	if !isErrorResult(result) {
		t.Error("expected error result for a non-object namespace")
	}
}

func TestPredictTool_ActiveMode(t *testing.T) {
	srv, cleanup := setupTestServer(t, true)
	defer cleanup()

	result := callTool(t, NewPredictTool(srv.learner).Handle, map[string]interface{}{
		"features": "a b",
	})
	if isErrorResult(result) {
		t.Fatalf("unexpected tool error: %s", getResultText(result))
	}

	var res models.PredictionResult
	if err := json.Unmarshal([]byte(getResultText(result)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Importance == nil || *res.Importance != 0.75 {
		t.Errorf("expected importance 0.75, got %+v", res)
	}
}

func TestSaveModelTool(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	tool := NewSaveModelTool(srv.learner)
	target := filepath.Join(srv.dir, "models", "tool.vw")

	result := callTool(t, tool.Handle, map[string]interface{}{
		"path": target,
		"tags": []interface{}{"manual"},
		"wait": "2s",
	})
	if isErrorResult(result) {
		t.Fatalf("unexpected tool error: %s", getResultText(result))
	}

	var cp models.Checkpoint
	if err := json.Unmarshal([]byte(getResultText(result)), &cp); err != nil {
		t.Fatal(err)
	}
	if !cp.IsWritten() || cp.Path != target || len(cp.Tags) != 1 {
		t.Errorf("unexpected checkpoint %+v", cp)
	}

	result = callTool(t, tool.Handle, map[string]interface{}{"wait": "soon"})
	if !isErrorResult(result) {
		t.Error("expected error result for an invalid wait")
	}

	result = callTool(t, tool.Handle, map[string]interface{}{"path": "/tmp/a|b.vw"})
	if !isErrorResult(result) {
		t.Error("expected error result for a path containing a pipe")
	}
}

func TestListCheckpointsTool(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	save := NewSaveModelTool(srv.learner)
	callTool(t, save.Handle, map[string]interface{}{"tags": "x", "wait": "2s"})
	callTool(t, save.Handle, map[string]interface{}{"tags": "y, z", "wait": "2s"})

	list := NewListCheckpointsTool(srv.learner)
	result := callTool(t, list.Handle, map[string]interface{}{
		"status": "written",
		"tags":   []interface{}{"z"},
	})
	if isErrorResult(result) {
		t.Fatalf("unexpected tool error: %s", getResultText(result))
	}

	var resp struct {
		Checkpoints []models.CheckpointSummary `json:"checkpoints"`
		Count       int                        `json:"count"`
	}
	if err := json.Unmarshal([]byte(getResultText(result)), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 {
		t.Errorf("expected 1 checkpoint tagged z, got %d", resp.Count)
	}

	result = callTool(t, list.Handle, map[string]interface{}{"status": "lost"})
	if !isErrorResult(result) {
		t.Error("expected error result for an unknown status")
	}
}

func TestSessionInfoTool(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	result := callTool(t, NewSessionInfoTool(srv.learner).Handle, nil)
	text := getResultText(result)
	if !strings.Contains(text, `"state": "active"`) {
		t.Errorf("expected active state in %s", text)
	}
}

func TestParseFeatures(t *testing.T) {
	features := parseFeatures("a b:0.5 url:http:x c: :1")
	if len(features) != 5 {
		t.Fatalf("expected 5 features, got %d", len(features))
	}
	if features[1].Label != "b" || features[1].Value == nil || *features[1].Value != 0.5 {
		t.Errorf("unexpected feature %+v", features[1])
	}
	// A colon not followed by a number belongs to the label.
	if features[2].Label != "url:http:x" || features[2].Value != nil {
		t.Errorf("unexpected feature %+v", features[2])
	}
	if features[3].Label != "c:" {
		t.Errorf("unexpected feature %+v", features[3])
	}
	if features[4].Label != ":1" || features[4].Value != nil {
		t.Errorf("unexpected feature %+v", features[4])
	}
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := srv.MCPServer().HandleMessage(context.Background(), msg)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"vw_send_example", "vw_predict", "vw_save_model", "vw_list_checkpoints", "vw_session_info"} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("tool %s not listed in %s", name, data)
		}
	}
}

func TestPredictTool_NonFiniteAnswer(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	srv.engine.answer = "-inf"
	result := callTool(t, NewPredictTool(srv.learner).Handle, map[string]interface{}{
		"features": "a",
	})
	if isErrorResult(result) {
		t.Fatalf("unexpected tool error: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), `"non_finite": true`) {
		t.Errorf("expected non_finite flag in %s", getResultText(result))
	}
}
