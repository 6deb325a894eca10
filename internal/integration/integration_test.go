package integration

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/go-sod/surrogate/internal/alert"
	"github.com/go-sod/surrogate/internal/collect"
	"github.com/go-sod/surrogate/internal/database"
	"github.com/go-sod/surrogate/internal/learner"
	"github.com/go-sod/surrogate/internal/learner/nn"
	"github.com/go-sod/surrogate/internal/predict"
	"github.com/go-sod/surrogate/internal/retrain"
	"github.com/go-sod/surrogate/internal/schema"
	"github.com/go-sod/surrogate/internal/server"
	snapshotDb "github.com/go-sod/surrogate/internal/snapshot/database"
	"github.com/go-sod/surrogate/internal/truth"
)

func learning() learner.Config {
	cfg := learner.Default()
	cfg.Schema = schema.KindBGK
	cfg.Net = nn.Config{Layers: 2, Hidden: 8, Activation: nn.ActivationTanh}
	cfg.Training.Epochs = 5
	cfg.Training.BatchSize = 16
	cfg.Ensemble.Members = 2
	cfg.Ensemble.MaxAttempts = 4
	// accept any finite scoring candidate
	cfg.Ensemble.ScoreThreshold = -1e9
	cfg.Ensemble.Seed = 3
	return cfg
}

func groundTruth(s schema.Schema, n int) [][]float64 {
	rng := rand.New(rand.NewSource(9))
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, s.RowWidth())
		var sum float64
		for j := s.Input.Lo; j < s.Input.Hi; j++ {
			row[j] = rng.Float64()
			sum += row[j]
		}
		for k := 0; k < s.OutputWidth(); k++ {
			row[s.Output.Lo+k] = float64(k+1)*sum + float64(k)
		}
		rows[i] = row
	}
	return rows
}

type stack struct {
	client   *Client
	manager  retrain.Manager
	snapshot *snapshotDb.DB
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	cfg := learning()
	s, err := schema.Lookup(cfg.Schema)
	assert.NilError(t, err)

	truthDB, err := truth.Open(ctx, &truth.Config{FileName: filepath.Join(dir, "truth.db")})
	assert.NilError(t, err)
	assert.NilError(t, truthDB.InitTables(ctx, s))
	db, err := database.New(ctx, &database.Config{FileName: filepath.Join(dir, "snapshots.db"), OpenTimeout: time.Second})
	assert.NilError(t, err)

	shutdownCh := make(chan error, 2)
	manager, err := retrain.New(truthDB, db, cfg, alert.NewNoop(shutdownCh), shutdownCh,
		retrain.WithInterval(20*time.Millisecond),
		retrain.WithMinRows(40),
		retrain.WithMaxSnapshots(2),
	)
	assert.NilError(t, err)
	assert.NilError(t, manager.Run(ctx))

	predictHandler, err := predict.NewHandler(&predict.Config{RequestTimeout: 5 * time.Second, MaxDataItemsLen: 8}, manager)
	assert.NilError(t, err)
	collectHandler, err := collect.NewHandler(&collect.Config{RequestTimeout: 5 * time.Second, MaxRows: 1000}, s, truthDB)
	assert.NilError(t, err)
	mux := http.NewServeMux()
	mux.Handle("/predict", predictHandler)
	mux.Handle("/collect", collectHandler)
	mux.Handle("/health", server.HandleHealth(ctx, manager.Ready))
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		for i := 0; i < cap(shutdownCh); i++ {
			select {
			case <-shutdownCh:
			case <-time.After(5 * time.Second):
				t.Errorf("service did not shut down")
			}
		}
		_ = truthDB.Close(context.Background())
		_ = db.Close(context.Background())
	})
	return &stack{
		client:   NewClient(strings.TrimPrefix(srv.URL, "http://")),
		manager:  manager,
		snapshot: snapshotDb.New(db),
	}
}

func waitReady(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		code, err := c.Health(context.Background())
		assert.NilError(t, err)
		if code == http.StatusOK {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("no model was installed")
}

func TestCollectThenPredict(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	s := st.manager.Schema()

	code, err := st.client.Health(ctx)
	assert.NilError(t, err)
	assert.Equal(t, code, http.StatusServiceUnavailable)

	input := schema.BGKInputs{Temperature: 0.5, Density: [4]float64{0.5, 0.5, 0.5, 0.5}, Charges: [4]float64{0.5, 0.5, 0.5, 0.5}}
	_, err = st.client.Predict(ctx, PredictRequest{Data: []interface{}{input}})
	var statusErr *StatusError
	assert.Assert(t, errors.As(err, &statusErr))
	assert.Equal(t, statusErr.Code, http.StatusServiceUnavailable)
	assert.Assert(t, strings.Contains(statusErr.Message, "no model"))

	collected, err := st.client.Collect(ctx, CollectRequest{Schema: "BGK", Rows: groundTruth(s, 60)})
	assert.NilError(t, err)
	assert.Equal(t, collected.Collected, 60)
	waitReady(t, st.client)

	resp, err := st.client.Predict(ctx, PredictRequest{Schema: "BGK", Data: []interface{}{input, input}})
	assert.NilError(t, err)
	assert.Equal(t, resp.Schema, "BGK")
	assert.Equal(t, len(resp.Data), 2)

	var mean, again schema.BGKOutputs
	assert.NilError(t, json.Unmarshal(resp.Data[0].Mean, &mean))
	assert.NilError(t, json.Unmarshal(resp.Data[1].Mean, &again))
	assert.DeepEqual(t, mean, again)
	var ok schema.BGKVerdict
	assert.NilError(t, json.Unmarshal(resp.Data[0].Ok, &ok))

	latest, err := st.snapshot.Latest(ctx, schema.KindBGK)
	assert.NilError(t, err)
	assert.Equal(t, resp.SnapshotID, latest.ID)
	assert.Equal(t, latest.Rows, 60)
}
