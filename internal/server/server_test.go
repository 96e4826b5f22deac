package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aadhira3355/BluePulse/internal/config"
	"github.com/aadhira3355/BluePulse/internal/db"
	"github.com/aadhira3355/BluePulse/internal/engine"
	"github.com/aadhira3355/BluePulse/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	cfg := config.Default()
	conn, err := db.Open()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, cfg, logger)
	e.Runner.Sleep = func(time.Duration) {} // no stage pacing in tests
	if err := e.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.Start(context.Background())
	handler, err := New(Config{Engine: e, BasePath: "/api", CORSOrigins: cfg.Server.CORSOrigins})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			e.Stop()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type filePart struct {
	field       string
	filename    string
	contentType string
	content     string
}

func doMultipart(t *testing.T, client *http.Client, url string, parts []filePart) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{`form-data; name="` + p.field + `"; filename="` + p.filename + `"`}
		hdr["Content-Type"] = []string{p.contentType}
		w, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := io.WriteString(w, p.content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	mw.Close()
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorMessage(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Message
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body HealthResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "healthy" || body.Version != "2.0.0" {
		t.Fatalf("unexpected payload: %+v", body)
	}
	if body.Services["api"] != "online" {
		t.Fatalf("services = %v", body.Services)
	}
}

func TestCORSHeader(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil)
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestDashboardStats(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/stats", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var stats engine.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.TotalSpecies != 5247 || stats.SystemUptime != "99.8%" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSpeciesEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/species/map-data", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("map-data status %d: %s", res.StatusCode, string(data))
	}
	var mapData SpeciesMapResponse
	if err := json.Unmarshal(data, &mapData); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if mapData.Total != 2 || len(mapData.Species) != 2 {
		t.Fatalf("unexpected map data: %+v", mapData)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/species/biodiversity-hotspots", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("hotspots status %d: %s", res.StatusCode, string(data))
	}
	var hotspots HotspotsResponse
	if err := json.Unmarshal(data, &hotspots); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(hotspots.Hotspots) != 3 || hotspots.Hotspots[0].Location != "Kochi" {
		t.Fatalf("unexpected hotspots: %+v", hotspots)
	}
}

func TestOceanographicParameters(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/oceanographic/parameters", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body ParametersResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	temp, ok := body.Parameters["temperature"]
	if !ok || temp.Value != 28.4 {
		t.Fatalf("unexpected parameters: %+v", body.Parameters)
	}
}

func TestForecastSplit(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/oceanographic/forecast/temperature?hours=10", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body ForecastResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Timestamps) != 10 || len(body.Historical) != 7 || len(body.Forecast) != 3 {
		t.Fatalf("lengths = %d/%d/%d", len(body.Timestamps), len(body.Historical), len(body.Forecast))
	}
	if body.Accuracy != 91.3 || body.Model != "LSTM" {
		t.Fatalf("accuracy/model = %v/%s", body.Accuracy, body.Model)
	}
}

func TestForecastDefaultHorizonAndUnknownParameter(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/oceanographic/forecast/turbidity", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body ForecastResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Timestamps) != 168 || len(body.Historical) != 117 || len(body.Forecast) != 51 {
		t.Fatalf("lengths = %d/%d/%d", len(body.Timestamps), len(body.Historical), len(body.Forecast))
	}
	// Unknown parameter falls back to the default base of 25.0.
	for _, v := range body.Historical {
		if v < 23 || v > 27 {
			t.Fatalf("value %v not near default base", v)
		}
	}
}

func TestForecastRejectsNonPositiveHours(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/oceanographic/forecast/temperature?hours=0", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestUploadAcceptsSequenceFiles(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doMultipart(t, srv.Client(), srv.URL+"/api/edna/upload", []filePart{
		{field: "files", filename: "sample.fasta", contentType: "application/octet-stream", content: ">seq1\nACGT"},
		{field: "files", filename: "reads.FQ", contentType: "application/octet-stream", content: "@r1\nACGT\n+\n!!!!"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body UploadResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.TotalFiles != 2 || len(body.UploadedFiles) != 2 {
		t.Fatalf("unexpected response: %+v", body)
	}
	if body.UploadedFiles[0].Filename != "sample.fasta" || body.UploadedFiles[0].Size != int64(len(">seq1\nACGT")) {
		t.Fatalf("unexpected metadata: %+v", body.UploadedFiles[0])
	}
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doMultipart(t, srv.Client(), srv.URL+"/api/edna/upload", []filePart{
		{field: "files", filename: "sample.txt", contentType: "text/plain", content: "not a sequence"},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if msg := errorMessage(t, data); !strings.Contains(msg, "Invalid file format: sample.txt") {
		t.Fatalf("message = %q", msg)
	}
}

func TestOtolithClassify(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doMultipart(t, srv.Client(), srv.URL+"/api/otolith/classify", []filePart{
		{field: "file", filename: "notes.txt", contentType: "text/plain", content: "not an image"},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("text/plain status %d: %s", res.StatusCode, string(data))
	}
	if msg := errorMessage(t, data); !strings.Contains(msg, "must be an image") {
		t.Fatalf("message = %q", msg)
	}

	res, data = doMultipart(t, srv.Client(), srv.URL+"/api/otolith/classify", []filePart{
		{field: "file", filename: "otolith.png", contentType: "image/png", content: strings.Repeat("x", 512)},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("image/png status %d: %s", res.StatusCode, string(data))
	}
	var body ClassifyResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Confidence < 0 || body.Confidence > 100 {
		t.Fatalf("confidence %v out of [0,100]", body.Confidence)
	}
	if body.Species.Scientific != "Rastrelliger kanagurta" {
		t.Fatalf("unexpected species: %+v", body.Species)
	}
}

func TestEDNAAnalysisLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	start := time.Now()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/edna/analyze?gene_target=coi&analysis_type=diversity", nil)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("analyze took %v, expected immediate return", elapsed)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var started AnalysisStartedResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if started.Status != "started" || started.GeneTarget != "coi" {
		t.Fatalf("unexpected response: %+v", started)
	}

	res2, data2 := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/edna/analyze", nil)
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("second analyze status %d: %s", res2.StatusCode, string(data2))
	}
	var second AnalysisStartedResponse
	_ = json.Unmarshal(data2, &second)
	if second.AnalysisID == started.AnalysisID {
		t.Fatalf("analysis ids not unique: %s", second.AnalysisID)
	}

	deadline := time.Now().Add(5 * time.Second)
	var results AnalysisResultsResponse
	for time.Now().Before(deadline) {
		res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/edna/results/"+started.AnalysisID, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("results status %d: %s", res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &results); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if results.Status == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if results.Status != "completed" {
		t.Fatalf("analysis never completed: %+v", results)
	}
	if results.Summary == nil || results.Summary.TotalFamilies != 287 {
		t.Fatalf("missing summary: %+v", results)
	}
	if len(results.SpeciesDetected) != 2 {
		t.Fatalf("species detected: %+v", results.SpeciesDetected)
	}
}

func TestEDNAResultsUnknownID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/edna/results/analysis_nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
}

func TestTrainingLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/ml/train/lstm?epochs=20&batch_size=16&learning_rate=0.01", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("train status %d: %s", res.StatusCode, string(data))
	}
	var started TrainingStartedResponse
	if err := json.Unmarshal(data, &started); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if started.Config.Epochs != 20 || started.Config.BatchSize != 16 {
		t.Fatalf("unexpected config: %+v", started.Config)
	}
	if started.Config.GPU != "cpu" {
		t.Fatalf("gpu = %q, want resolved default %q", started.Config.GPU, "cpu")
	}
	if !strings.HasPrefix(started.TrainingID, "training_lstm_") {
		t.Fatalf("training id = %s", started.TrainingID)
	}

	deadline := time.Now().Add(5 * time.Second)
	var status TrainingStatusResponse
	for time.Now().Before(deadline) {
		res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/ml/training/"+started.TrainingID+"/status", nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &status); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if status.Status == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.Status != "completed" || status.CurrentEpoch != 20 {
		t.Fatalf("training never completed: %+v", status)
	}
	if status.CurrentAccuracy < 0.9 {
		t.Fatalf("final accuracy %v", status.CurrentAccuracy)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/ml/training/training_unknown/status", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id status %d: %s", res.StatusCode, string(data))
	}
}

func TestListModels(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/ml/models", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body ModelsResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Models) != 3 {
		t.Fatalf("got %d models", len(body.Models))
	}
}

func TestChat(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/ai/chat", ChatRequest{Message: "Tell me about ENDANGERED sharks"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var body ChatResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(body.Response, "Malabar Grouper") {
		t.Fatalf("unexpected response: %q", body.Response)
	}
	if body.Confidence != 0.89 || body.Model != "DistilBERT" {
		t.Fatalf("confidence/model = %v/%s", body.Confidence, body.Model)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/ai/chat", ChatRequest{Message: "hello"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("default status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &body)
	if !strings.Contains(body.Response, "BluePulse AI") {
		t.Fatalf("expected default response, got %q", body.Response)
	}
}

func TestIndexAndDocs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, err := srv.Client().Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("index status %d content-type %s", res.StatusCode, res.Header.Get("Content-Type"))
	}

	res2, err := srv.Client().Get(srv.URL + "/api/docs")
	if err != nil {
		t.Fatalf("get docs: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("docs status %d", res2.StatusCode)
	}
}

// The OpenAPI document is marshalled on first request; fetching it from many
// goroutines must produce one consistent document (run with -race).
func TestOpenAPIConcurrentFetch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	bodies := make([][]byte, 8)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/api/openapi.json")
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				t.Errorf("status %d", res.StatusCode)
				return
			}
			data, err := io.ReadAll(res.Body)
			if err != nil {
				t.Errorf("read body: %v", err)
				return
			}
			bodies[i] = data
		}(i)
	}
	wg.Wait()

	for i, body := range bodies {
		if len(body) == 0 {
			t.Fatalf("body %d empty", i)
		}
		if !bytes.Equal(body, bodies[0]) {
			t.Fatalf("body %d differs from body 0", i)
		}
	}
}
