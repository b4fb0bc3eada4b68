package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sevir/wappa/pkg/models"
)

type resultResp struct {
	Result models.PredictionResult `json:"result"`
	Error  string                  `json:"error"`
}

type checkpointResp struct {
	Checkpoint models.Checkpoint `json:"checkpoint"`
	Error      string            `json:"error"`
}

type listCheckpointsResp struct {
	Checkpoints []models.Checkpoint `json:"checkpoints"`
}

func doJSON(t *testing.T, srv *testServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestAPIExample(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	label := 1.0
	value := 0.5
	w := doJSON(t, srv, "POST", "/api/examples", models.ExampleRequest{
		Label: &label,
		Tag:   "row 1",
		Features: []models.FeatureSpec{
			{Label: "price", Value: &value},
			{Label: "old"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}

	var resp resultResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.Prediction == nil || *resp.Result.Prediction != 0.5 {
		t.Fatalf("expected prediction 0.5, got %+v", resp.Result)
	}
	if want := `1.0 'row\_1| price:0.5 old `; resp.Result.Line != want {
		t.Errorf("expected line %q, got %q", want, resp.Result.Line)
	}
	if srv.engine.lastSent() != resp.Result.Line {
		t.Errorf("engine received %q, response reports %q", srv.engine.lastSent(), resp.Result.Line)
	}
}

func TestAPIExample_RawLine(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	w := doJSON(t, srv, "POST", "/api/examples", models.ExampleRequest{Raw: "1 | a b"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if got := srv.engine.lastSent(); got != "1 | a b" {
		t.Errorf("expected raw line to be sent verbatim, got %q", got)
	}
}

func TestAPIExample_BadRequests(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/examples", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}

	w = doJSON(t, srv, "POST", "/api/examples", models.ExampleRequest{
		Features: []models.FeatureSpec{{Label: ""}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty feature label, got %d", w.Code)
	}

	w = doJSON(t, srv, "POST", "/api/examples", models.ExampleRequest{Raw: "1 | a\n1 | b"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for multi-line raw input, got %d", w.Code)
	}
}

func TestAPIPredict_ActiveMode(t *testing.T) {
	srv, cleanup := setupTestServer(t, true)
	defer cleanup()

	w := doJSON(t, srv, "POST", "/api/predictions", models.PredictRequest{
		Features: []models.FeatureSpec{{Label: "a"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}

	var resp resultResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.Importance == nil || *resp.Result.Importance != 0.75 {
		t.Errorf("expected importance 0.75, got %+v", resp.Result)
	}
	if resp.Result.Line != "| a " {
		t.Errorf("expected unlabelled line, got %q", resp.Result.Line)
	}
}

func TestAPISave(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	// Without wait the checkpoint stays pending.
	w := doJSON(t, srv, "POST", "/api/checkpoints", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", w.Code, w.Body.String())
	}
	var pending checkpointResp
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatal(err)
	}
	if pending.Checkpoint.Status != models.CheckpointStatusPending {
		t.Errorf("expected pending checkpoint, got %s", pending.Checkpoint.Status)
	}

	target := filepath.Join(srv.dir, "models", "nightly.vw")
	w = doJSON(t, srv, "POST", "/api/checkpoints", map[string]interface{}{
		"path": target,
		"tags": []string{"nightly"},
		"wait": "2s",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
	}
	var written checkpointResp
	if err := json.Unmarshal(w.Body.Bytes(), &written); err != nil {
		t.Fatal(err)
	}
	if written.Checkpoint.Path != target || !written.Checkpoint.IsWritten() {
		t.Errorf("unexpected checkpoint %+v", written.Checkpoint)
	}

	w = doJSON(t, srv, "POST", "/api/checkpoints", map[string]interface{}{"path": "/tmp/bad name.vw"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for path with a space, got %d", w.Code)
	}
}

func TestAPICheckpoints_ListGetDelete(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	for _, tag := range []string{"a", "b"} {
		w := doJSON(t, srv, "POST", "/api/checkpoints", map[string]interface{}{
			"tags": []string{tag},
			"wait": "2s",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
		}
	}

	w := doJSON(t, srv, "GET", "/api/checkpoints?status=written,pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var all listCheckpointsResp
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all.Checkpoints) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(all.Checkpoints))
	}

	w = doJSON(t, srv, "GET", "/api/checkpoints?tag=b", nil)
	var tagged listCheckpointsResp
	if err := json.Unmarshal(w.Body.Bytes(), &tagged); err != nil {
		t.Fatal(err)
	}
	if len(tagged.Checkpoints) != 1 || tagged.Checkpoints[0].Tags[0] != "b" {
		t.Fatalf("expected only the checkpoint tagged b, got %+v", tagged.Checkpoints)
	}
	id := tagged.Checkpoints[0].ID

	w = doJSON(t, srv, "GET", "/api/checkpoints/"+id, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}

	w = doJSON(t, srv, "DELETE", "/api/checkpoints/"+id+"?remove_file=true", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 got %d", w.Code)
	}

	w = doJSON(t, srv, "GET", "/api/checkpoints/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestAPICheckpointsList_BadQuery(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	for _, path := range []string{
		"/api/checkpoints?status=lost",
		"/api/checkpoints?limit=-1",
		"/api/checkpoints?offset=x",
	} {
		w := doJSON(t, srv, "GET", path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400 got %d", path, w.Code)
		}
	}
}

func TestAPISessionAndVersion(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	doJSON(t, srv, "POST", "/api/examples", models.ExampleRequest{Raw: "1 | a"})

	w := doJSON(t, srv, "GET", "/api/session", nil)
	var resp struct {
		Session models.SessionInfo `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Session.Examples != 1 || resp.Session.State != "active" {
		t.Errorf("unexpected session info %+v", resp.Session)
	}

	w = doJSON(t, srv, "GET", "/api/version", nil)
	if !strings.Contains(w.Body.String(), "abc123") {
		t.Errorf("expected commit in version response, got %s", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	doJSON(t, srv, "POST", "/api/examples", models.ExampleRequest{Raw: "1 | a"})

	w := doJSON(t, srv, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wappa_engine_examples_total") {
		t.Errorf("expected example counter in metrics output")
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(&apiError{msg: "x"}); got != http.StatusBadGateway {
		t.Errorf("expected 502 for unknown errors, got %d", got)
	}
}

func TestAPIExample_NonFiniteAnswer(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	srv.engine.answer = "nan"
	w := doJSON(t, srv, "POST", "/api/examples", models.ExampleRequest{Raw: "1 | a"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected a response body")
	}

	var resp resultResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Result.NonFinite || resp.Result.Prediction != nil || resp.Result.Raw != "nan" {
		t.Errorf("unexpected result %+v", resp.Result)
	}
}

func TestAPICheckpointsList_SessionFilter(t *testing.T) {
	srv, cleanup := setupTestServer(t, false)
	defer cleanup()

	w := doJSON(t, srv, "POST", "/api/checkpoints", map[string]interface{}{"wait": "2s"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
	}

	sessionID := srv.learner.Info().ID
	for query, want := range map[string]int{
		"?session_id=" + sessionID: 1,
		"?session_id=other":        0,
	} {
		w := doJSON(t, srv, "GET", "/api/checkpoints"+query, nil)
		var resp listCheckpointsResp
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if len(resp.Checkpoints) != want {
			t.Errorf("%s: expected %d checkpoints, got %d", query, want, len(resp.Checkpoints))
		}
	}
}
