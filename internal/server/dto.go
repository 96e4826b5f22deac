package server

import (
	"encoding/json"
	"time"

	"github.com/aadhira3355/BluePulse/internal/domain"
	"github.com/aadhira3355/BluePulse/internal/engine"
)

// Request payloads

type ChatRequest struct {
	Message string `json:"message"`
}

// Response payloads

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp" format:"date-time"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

type ActivityFeedResponse struct {
	Activities []domain.Activity `json:"activities"`
}

type SpeciesMapResponse struct {
	Species []domain.Species `json:"species"`
	Total   int              `json:"total"`
}

type HotspotsResponse struct {
	Hotspots []domain.Hotspot `json:"hotspots"`
}

type ParameterReading struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Trend  float64 `json:"trend"`
	Status string  `json:"status"`
}

type ParametersResponse struct {
	Parameters map[string]ParameterReading `json:"parameters"`
	Timestamp  string                      `json:"timestamp" format:"date-time"`
}

type ForecastResponse struct {
	Parameter  string    `json:"parameter"`
	Timestamps []string  `json:"timestamps"`
	Historical []float64 `json:"historical"`
	Forecast   []float64 `json:"forecast"`
	Accuracy   float64   `json:"accuracy"`
	Model      string    `json:"model"`
}

type UploadResponse struct {
	UploadedFiles []domain.Upload `json:"uploaded_files"`
	TotalFiles    int             `json:"total_files"`
}

type AnalysisStartedResponse struct {
	AnalysisID    string `json:"analysis_id"`
	Status        string `json:"status"`
	EstimatedTime string `json:"estimated_time"`
	GeneTarget    string `json:"gene_target"`
	AnalysisType  string `json:"analysis_type"`
}

type AnalysisSummary struct {
	TotalFamilies          int `json:"total_families"`
	FishSpecies            int `json:"fish_species"`
	ClassificationAccuracy int `json:"classification_accuracy"`
}

type DetectedSpecies struct {
	Name       string `json:"name"`
	Scientific string `json:"scientific"`
	Confidence int    `json:"confidence"`
	Abundance  int    `json:"abundance"`
	Status     string `json:"status"`
}

type AnalysisResultsResponse struct {
	AnalysisID      string            `json:"analysis_id"`
	Status          string            `json:"status" enum:"started,running,completed"`
	CurrentStage    int               `json:"current_stage"`
	TotalStages     int               `json:"total_stages"`
	StageName       string            `json:"stage_name,omitempty"`
	CompletionTime  *string           `json:"completion_time,omitempty" format:"date-time"`
	Summary         *AnalysisSummary  `json:"summary,omitempty"`
	SpeciesDetected []DetectedSpecies `json:"species_detected,omitempty"`
}

type ClassifiedSpecies struct {
	Scientific string `json:"scientific"`
	Common     string `json:"common"`
}

type Morphometric struct {
	Length      float64 `json:"length"`
	Width       float64 `json:"width"`
	Circularity float64 `json:"circularity"`
	AgeEstimate int     `json:"age_estimate"`
}

type ProcessingInfo struct {
	FeaturesExtracted int    `json:"features_extracted"`
	InferenceTimeMS   int    `json:"inference_time_ms"`
	Model             string `json:"model"`
	Accuracy          string `json:"accuracy"`
}

type ClassifyResponse struct {
	Species      ClassifiedSpecies `json:"species"`
	Confidence   float64           `json:"confidence"`
	Morphometric Morphometric      `json:"morphometric"`
	Processing   ProcessingInfo    `json:"processing"`
	Timestamp    string            `json:"timestamp" format:"date-time"`
}

type ModelsResponse struct {
	Models []domain.Model `json:"models"`
}

type TrainingConfig struct {
	ModelID      string  `json:"model_id"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	GPU          string  `json:"gpu"`
}

type TrainingStartedResponse struct {
	TrainingID    string         `json:"training_id"`
	Status        string         `json:"status"`
	Config        TrainingConfig `json:"config"`
	EstimatedTime string         `json:"estimated_time"`
}

type TrainingStatusResponse struct {
	TrainingID         string  `json:"training_id"`
	Status             string  `json:"status" enum:"started,running,completed"`
	CurrentEpoch       int     `json:"current_epoch"`
	TotalEpochs        int     `json:"total_epochs"`
	CurrentLoss        float64 `json:"current_loss"`
	CurrentAccuracy    float64 `json:"current_accuracy"`
	BestAccuracy       float64 `json:"best_accuracy"`
	ElapsedTime        string  `json:"elapsed_time"`
	EstimatedRemaining string  `json:"estimated_remaining"`
}

type ChatResponse struct {
	Response   string  `json:"response"`
	Timestamp  string  `json:"timestamp" format:"date-time"`
	Model      string  `json:"model"`
	Confidence float64 `json:"confidence"`
}

// Mapping helpers

func forecastResponse(res engine.ForecastResult) ForecastResponse {
	return ForecastResponse{
		Parameter:  res.Series.Parameter,
		Timestamps: formatTimestamps(res.Series.Timestamps),
		Historical: emptySlice(res.Series.Historical),
		Forecast:   emptySlice(res.Series.Forecast),
		Accuracy:   res.Accuracy,
		Model:      res.Model,
	}
}

func formatTimestamps(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Format(time.RFC3339))
	}
	return out
}

// emptySlice keeps zero-length segments as [] rather than null in JSON.
func emptySlice(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func analysisResultsResponse(run domain.TaskRun) AnalysisResultsResponse {
	resp := AnalysisResultsResponse{
		AnalysisID:     run.ID,
		Status:         run.Status,
		CurrentStage:   run.CurrentStage,
		TotalStages:    run.TotalStages,
		StageName:      run.StageName,
		CompletionTime: run.CompletedAt,
	}
	if run.ResultJSON != "" {
		var result struct {
			Summary         AnalysisSummary   `json:"summary"`
			SpeciesDetected []DetectedSpecies `json:"species_detected"`
		}
		if err := json.Unmarshal([]byte(run.ResultJSON), &result); err == nil {
			resp.Summary = &result.Summary
			resp.SpeciesDetected = result.SpeciesDetected
		}
	}
	return resp
}

func trainingStatusResponse(snap engine.TrainingSnapshot) TrainingStatusResponse {
	return TrainingStatusResponse{
		TrainingID:         snap.Run.ID,
		Status:             snap.Run.Status,
		CurrentEpoch:       snap.CurrentEpoch,
		TotalEpochs:        snap.TotalEpochs,
		CurrentLoss:        snap.CurrentLoss,
		CurrentAccuracy:    snap.CurrentAccuracy,
		BestAccuracy:       snap.BestAccuracy,
		ElapsedTime:        snap.Elapsed.String(),
		EstimatedRemaining: snap.Remaining.String(),
	}
}

func classifyResponse(c engine.Classification, ts string) ClassifyResponse {
	return ClassifyResponse{
		Species:    ClassifiedSpecies{Scientific: c.Scientific, Common: c.Common},
		Confidence: c.Confidence,
		Morphometric: Morphometric{
			Length:      c.Length,
			Width:       c.Width,
			Circularity: c.Circularity,
			AgeEstimate: c.AgeEstimate,
		},
		Processing: ProcessingInfo{
			FeaturesExtracted: c.FeaturesExtracted,
			InferenceTimeMS:   c.InferenceTimeMS,
			Model:             c.Model,
			Accuracy:          c.ModelAccuracy,
		},
		Timestamp: ts,
	}
}
