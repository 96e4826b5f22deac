package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/aadhira3355/BluePulse/internal/engine"
	"github.com/aadhira3355/BluePulse/internal/repo"
	"github.com/aadhira3355/BluePulse/internal/simulate"
)

// Config for the HTTP API handler.
type Config struct {
	Engine      engine.Engine
	BasePath    string
	CORSOrigins []string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"Invalid file format: sample.txt"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the JSON error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the BluePulse API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema validation failures surface as 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(corsMiddleware(cfg.CORSOrigins))
	hcfg := huma.DefaultConfig("BluePulse ML API", "2.0.0")
	hcfg.Info.Description = "Advanced Marine Data Analytics Platform with AI/ML capabilities"
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerIndex(router)
	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerSpecies(group, cfg.Engine)
	registerOceanographic(group, cfg.Engine)
	registerEDNA(group, cfg.Engine)
	registerOtolith(group, cfg.Engine)
	registerML(group, cfg.Engine)
	registerChat(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", ve.Msg, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, simulate.ErrQueueFull) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// corsMiddleware answers preflight requests and stamps the allowed origin.
// Open to all origins unless the config narrows the list.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func registerIndex(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, indexHTML)
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	docPath := path.Join(basePath, "openapi.json")
	r.Get(docPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { doc, _ = json.Marshal(api.OpenAPI()) })
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>BluePulse API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

const indexHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>BluePulse</title>
  </head>
  <body>
    <h1>BluePulse Marine Analytics</h1>
    <p>The dashboard frontend is served separately. API documentation lives at <a href="/api/docs">/api/docs</a>.</p>
  </body>
</html>`

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().Format(time.RFC3339),
			Version:   "2.0.0",
			Services: map[string]string{
				"api":          "online",
				"ml_inference": "online",
				"database":     "online",
			},
		}}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-stats",
		Method:      http.MethodGet,
		Path:        "/dashboard/stats",
		Summary:     "Dashboard KPI statistics",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.Stats `json:"body"`
	}, error) {
		stats, err := e.DashboardStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Stats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-recent-activity",
		Method:      http.MethodGet,
		Path:        "/dashboard/recent-activity",
		Summary:     "Recent system activity",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ActivityFeedResponse `json:"body"`
	}, error) {
		items, err := e.RecentActivity(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityFeedResponse `json:"body"`
		}{Body: ActivityFeedResponse{Activities: items}}, nil
	})
}

func registerSpecies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "species-map-data",
		Method:      http.MethodGet,
		Path:        "/species/map-data",
		Summary:     "Species distribution data for mapping",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SpeciesMapResponse `json:"body"`
	}, error) {
		items, err := e.SpeciesMapData(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SpeciesMapResponse `json:"body"`
		}{Body: SpeciesMapResponse{Species: items, Total: len(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "biodiversity-hotspots",
		Method:      http.MethodGet,
		Path:        "/species/biodiversity-hotspots",
		Summary:     "Biodiversity hotspot data",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HotspotsResponse `json:"body"`
	}, error) {
		items, err := e.Hotspots(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HotspotsResponse `json:"body"`
		}{Body: HotspotsResponse{Hotspots: items}}, nil
	})
}

func registerOceanographic(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "oceanographic-parameters",
		Method:      http.MethodGet,
		Path:        "/oceanographic/parameters",
		Summary:     "Current oceanographic parameters",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ParametersResponse `json:"body"`
	}, error) {
		readings, err := e.Parameters(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		params := make(map[string]ParameterReading, len(readings))
		for _, rd := range readings {
			params[rd.Parameter] = ParameterReading{
				Value:  rd.Value,
				Unit:   rd.Unit,
				Trend:  rd.Trend,
				Status: rd.Status,
			}
		}
		return &struct {
			Body ParametersResponse `json:"body"`
		}{Body: ParametersResponse{Parameters: params, Timestamp: time.Now().Format(time.RFC3339)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "parameter-forecast",
		Method:      http.MethodGet,
		Path:        "/oceanographic/forecast/{parameter}",
		Summary:     "Synthetic forecast for an oceanographic parameter",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Parameter string `path:"parameter"`
		Hours     int    `query:"hours" default:"168" minimum:"1" maximum:"8760"`
	}) (*struct {
		Body ForecastResponse `json:"body"`
	}, error) {
		res, err := e.Forecast(ctx, input.Parameter, input.Hours)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ForecastResponse `json:"body"`
		}{Body: forecastResponse(res)}, nil
	})
}

func registerEDNA(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upload-edna-files",
		Method:      http.MethodPost,
		Path:        "/edna/upload",
		Summary:     "Upload eDNA sequence files",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RawBody multipart.Form
	}) (*struct {
		Body UploadResponse `json:"body"`
	}, error) {
		var files []engine.UploadedFile
		for _, fh := range input.RawBody.File["files"] {
			files = append(files, engine.UploadedFile{
				Filename:    fh.Filename,
				Size:        fh.Size,
				ContentType: fh.Header.Get("Content-Type"),
			})
		}
		if len(files) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "no files provided", nil)
		}
		saved, err := e.SaveUploads(ctx, files)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UploadResponse `json:"body"`
		}{Body: UploadResponse{UploadedFiles: saved, TotalFiles: len(saved)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-edna-analysis",
		Method:      http.MethodPost,
		Path:        "/edna/analyze",
		Summary:     "Start eDNA sequence analysis",
	}, func(ctx context.Context, input *struct {
		GeneTarget   string `query:"gene_target" default:"18s"`
		AnalysisType string `query:"analysis_type" default:"taxonomy"`
	}) (*struct {
		Body AnalysisStartedResponse `json:"body"`
	}, error) {
		run, err := e.StartAnalysis(ctx, input.GeneTarget, input.AnalysisType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnalysisStartedResponse `json:"body"`
		}{Body: AnalysisStartedResponse{
			AnalysisID:    run.ID,
			Status:        run.Status,
			EstimatedTime: "5-10 minutes",
			GeneTarget:    input.GeneTarget,
			AnalysisType:  input.AnalysisType,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edna-results",
		Method:      http.MethodGet,
		Path:        "/edna/results/{analysis_id}",
		Summary:     "eDNA analysis results",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AnalysisID string `path:"analysis_id"`
	}) (*struct {
		Body AnalysisResultsResponse `json:"body"`
	}, error) {
		run, err := e.AnalysisRun(ctx, input.AnalysisID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnalysisResultsResponse `json:"body"`
		}{Body: analysisResultsResponse(run)}, nil
	})
}

func registerOtolith(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "classify-otolith",
		Method:      http.MethodPost,
		Path:        "/otolith/classify",
		Summary:     "Classify an otolith image",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RawBody multipart.Form
	}) (*struct {
		Body ClassifyResponse `json:"body"`
	}, error) {
		parts := input.RawBody.File["file"]
		if len(parts) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "file is required", nil)
		}
		fh := parts[0]
		result, err := e.ClassifyOtolith(ctx, fh.Header.Get("Content-Type"), fh.Size)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ClassifyResponse `json:"body"`
		}{Body: classifyResponse(result, time.Now().Format(time.RFC3339))}, nil
	})
}

func registerML(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/ml/models",
		Summary:     "Available ML models",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ModelsResponse `json:"body"`
	}, error) {
		models, err := e.ListModels(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ModelsResponse `json:"body"`
		}{Body: ModelsResponse{Models: models}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-training",
		Method:      http.MethodPost,
		Path:        "/ml/train/{model_id}",
		Summary:     "Start training a model",
	}, func(ctx context.Context, input *struct {
		ModelID      string  `path:"model_id"`
		BatchSize    int     `query:"batch_size" default:"32" minimum:"1"`
		LearningRate float64 `query:"learning_rate" default:"0.001"`
		Epochs       int     `query:"epochs" default:"100" minimum:"1" maximum:"10000"`
	}) (*struct {
		Body TrainingStartedResponse `json:"body"`
	}, error) {
		run, err := e.StartTraining(ctx, input.ModelID, simulate.TrainingParams{
			BatchSize:    input.BatchSize,
			LearningRate: input.LearningRate,
			Epochs:       input.Epochs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		// The stored params carry the resolved defaults (device included).
		var resolved simulate.TrainingParams
		_ = json.Unmarshal([]byte(run.ParamsJSON), &resolved)
		return &struct {
			Body TrainingStartedResponse `json:"body"`
		}{Body: TrainingStartedResponse{
			TrainingID: run.ID,
			Status:     run.Status,
			Config: TrainingConfig{
				ModelID:      input.ModelID,
				BatchSize:    resolved.BatchSize,
				LearningRate: resolved.LearningRate,
				Epochs:       run.TotalStages,
				GPU:          resolved.Device,
			},
			EstimatedTime: fmt.Sprintf("%d minutes", run.TotalStages*2),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "training-status",
		Method:      http.MethodGet,
		Path:        "/ml/training/{training_id}/status",
		Summary:     "Training status and metrics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TrainingID string `path:"training_id"`
	}) (*struct {
		Body TrainingStatusResponse `json:"body"`
	}, error) {
		snap, err := e.TrainingStatus(ctx, input.TrainingID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TrainingStatusResponse `json:"body"`
		}{Body: trainingStatusResponse(snap)}, nil
	})
}

func registerChat(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "ai-chat",
		Method:      http.MethodPost,
		Path:        "/ai/chat",
		Summary:     "Chat with the marine AI assistant",
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		reply := e.Chat(input.Body.Message)
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: ChatResponse{
			Response:   reply.Text,
			Timestamp:  time.Now().Format(time.RFC3339),
			Model:      e.Config.Chat.Model,
			Confidence: reply.Confidence,
		}}, nil
	})
}
