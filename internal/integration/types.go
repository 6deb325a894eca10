package integration

import (
	"encoding/json"

	"github.com/google/uuid"
)

type CollectRequest struct {
	Schema string      `json:"schema,omitempty"`
	Rows   [][]float64 `json:"rows"`
}

type CollectResponse struct {
	Schema    string `json:"schema"`
	Collected int    `json:"collected"`
}

// PredictRequest carries named input records of the served schema.
type PredictRequest struct {
	Schema string        `json:"schema,omitempty"`
	Data   []interface{} `json:"data"`
}

// PredictResult keeps the named records raw, decode them into the schema types.
type PredictResult struct {
	Mean     json.RawMessage `json:"mean"`
	ErrBars  json.RawMessage `json:"errbars"`
	Fuzzy    json.RawMessage `json:"fuzzy"`
	Ok       json.RawMessage `json:"ok"`
	Accepted bool            `json:"accepted"`
}

type PredictResponse struct {
	Schema     string          `json:"schema"`
	SnapshotID uuid.UUID       `json:"snapshotId"`
	Data       []PredictResult `json:"data"`
}
