package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/go-sod/surrogate/internal/httputil"
	"github.com/go-sod/surrogate/internal/retrain"
	"github.com/go-sod/surrogate/internal/schema"
)

const maxBodyBytes = 64 * 1024 * 1024

type request struct {
	// optional, checked against the served schema when set
	Schema string            `json:"schema"`
	Data   []json.RawMessage `json:"data"`
}

type result struct {
	Mean     schema.Outputs `json:"mean"`
	ErrBars  schema.Outputs `json:"errbars"`
	Fuzzy    schema.Outputs `json:"fuzzy"`
	Ok       schema.Verdict `json:"ok"`
	Accepted bool           `json:"accepted"`
}

type response struct {
	Schema     string    `json:"schema"`
	SnapshotID uuid.UUID `json:"snapshotId"`
	Data       []result  `json:"data"`
}

func NewHandler(cfg *Config, predictor retrain.Predictor) (http.Handler, error) {
	if predictor == nil {
		return nil, fmt.Errorf("predictor instance is not created")
	}
	if predictor.Schema().Adapter == nil {
		return nil, fmt.Errorf("schema %s has no named records", predictor.Schema().Kind)
	}
	return &handler{
		cfg:       cfg,
		predictor: predictor,
	}, nil
}

type handler struct {
	predictor retrain.Predictor
	cfg       *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
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

	s := h.predictor.Schema()
	if req.Schema != "" && req.Schema != s.Kind.String() {
		httputil.RespBadRequest(ctx, w, "schema %s is not served, expected %s", req.Schema, s.Kind)
		return
	}
	if len(req.Data) == 0 {
		httputil.RespBadRequest(ctx, w, "data items must not be empty")
		return
	}
	if len(req.Data) > h.cfg.MaxDataItemsLen {
		httputil.RespBadRequest(ctx, w, "data items is too large, max allowed len is %d", h.cfg.MaxDataItemsLen)
		return
	}

	inputs := make([]schema.Inputs, len(req.Data))
	for i, raw := range req.Data {
		in := s.Adapter.NewInputs()
		if err := json.Unmarshal(raw, in); err != nil {
			httputil.RespBadRequest(ctx, w, "invalid data item %d: %v", i, err)
			return
		}
		inputs[i] = in
	}

	// one model answers the whole request even when a retrain installs another meanwhile
	querier, err := h.predictor.Acquire()
	if err != nil {
		if errors.Is(err, retrain.ErrNoModel) || errors.Is(err, retrain.ErrShutdown) {
			httputil.RespError(ctx, w, http.StatusServiceUnavailable, "%v", err)
			return
		}
		httputil.RespInternalError(ctx, w, "acquire model, %v", err)
		return
	}

	resp := response{Schema: s.Kind.String(), SnapshotID: querier.SnapshotID(), Data: make([]result, len(inputs))}
	errGrp, gctx := errgroup.WithContext(ctx)
	for i := range inputs {
		i := i
		errGrp.Go(func() error {
			p, err := querier.Predict(gctx, inputs[i])
			if err != nil {
				return err
			}
			res, err := encode(s.Adapter, p)
			if err != nil {
				return err
			}
			resp.Data[i] = res
			return nil
		})
	}
	if err := errGrp.Wait(); err != nil {
		httputil.RespInternalError(ctx, w, "predict processing error, %v", err)
		return
	}
	httputil.RespJSON(ctx, w, http.StatusOK, resp)
}

func encode(adapter schema.Adapter, p *retrain.Prediction) (result, error) {
	var err error
	res := result{Ok: p.Ok, Accepted: p.Accepted}
	if res.Mean, err = finite(adapter, p.Mean); err != nil {
		return result{}, err
	}
	if res.ErrBars, err = finite(adapter, p.ErrBars); err != nil {
		return result{}, err
	}
	if res.Fuzzy, err = finite(adapter, p.Fuzzy); err != nil {
		return result{}, err
	}
	return res, nil
}

// finite clamps values JSON can not carry: infinities to the largest float of the same sign, NaN
// to the largest float.
func finite(adapter schema.Adapter, out schema.Outputs) (schema.Outputs, error) {
	packed, err := adapter.PackOutputs(out)
	if err != nil {
		return nil, err
	}
	clamped := false
	for j, v := range packed {
		switch {
		case math.IsNaN(v), math.IsInf(v, 1):
			packed[j] = math.MaxFloat64
		case math.IsInf(v, -1):
			packed[j] = -math.MaxFloat64
		default:
			continue
		}
		clamped = true
	}
	if !clamped {
		return out, nil
	}
	return adapter.UnpackOutputs(packed)
}
