// Package collect accepts ground truth rows computed by the fine grained solver.
package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sod/surrogate/internal/httputil"
	"github.com/go-sod/surrogate/internal/logging"
	"github.com/go-sod/surrogate/internal/schema"
)

const maxBodyBytes = 64 * 1024 * 1024

// Inserter stores raw ground truth rows.
type Inserter interface {
	InsertMany(ctx context.Context, s schema.Schema, rows [][]float64) error
}

type request struct {
	// optional, checked against the served schema when set
	Schema string      `json:"schema"`
	Rows   [][]float64 `json:"rows"`
}

type response struct {
	Schema    string `json:"schema"`
	Collected int    `json:"collected"`
}

func NewHandler(cfg *Config, s schema.Schema, inserter Inserter) (http.Handler, error) {
	if inserter == nil {
		return nil, fmt.Errorf("ground truth store is not created")
	}
	return &handler{
		cfg:      cfg,
		schema:   s,
		inserter: inserter,
	}, nil
}

type handler struct {
	cfg      *Config
	schema   schema.Schema
	inserter Inserter
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	if !httputil.AcceptJSONPost(ctx, w, r) {
		return
	}

	defer r.Body.Close()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(&req); err != nil {
		httputil.DecodeErr(ctx, w, err)
		return
	}

	if req.Schema != "" && req.Schema != h.schema.Kind.String() {
		httputil.RespBadRequest(ctx, w, "schema %s is not served, expected %s", req.Schema, h.schema.Kind)
		return
	}
	if len(req.Rows) == 0 {
		httputil.RespBadRequest(ctx, w, "rows must not be empty")
		return
	}
	if len(req.Rows) > h.cfg.MaxRows {
		httputil.RespBadRequest(ctx, w, "rows is too large, max allowed len is %d", h.cfg.MaxRows)
		return
	}
	if err := h.inserter.InsertMany(ctx, h.schema, req.Rows); err != nil {
		if errors.Is(err, schema.ErrWidth) {
			httputil.RespBadRequest(ctx, w, "%v", err)
			return
		}
		httputil.RespInternalError(ctx, w, "unable store rows, %v", err)
		return
	}
	logger.Infof("collected %d ground truth rows for %s", len(req.Rows), h.schema.Kind)
	httputil.RespJSON(ctx, w, http.StatusAccepted, response{Schema: h.schema.Kind.String(), Collected: len(req.Rows)})
}
