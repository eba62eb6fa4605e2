package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hm-tracker/internal/app"
	"hm-tracker/internal/config"
	"hm-tracker/internal/domain"
	"hm-tracker/internal/teamsource/stub"
)

func newTestHandlers(t *testing.T, vaultKey string) *handlers {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	cfg := &config.Config{
		UseMemory:          true,
		VaultKey:           vaultKey,
		ValuationStrategy:  "iterative",
		AutolineupPageSize: 50,
	}
	stores, cleanup, err := app.OpenStores(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	components, err := app.NewComponents(cfg, stores, stub.NewConnector(), logger)
	require.NoError(t, err)
	return &handlers{components: components, stores: stores, logger: logger}
}

func TestHealthAndStatus(t *testing.T) {
	h := newTestHandlers(t, "")
	srv := httptest.NewServer(h.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "idle", status.Operation.State)
	assert.Empty(t, status.Tasks)
}

func TestStartAutolineup(t *testing.T) {
	t.Run("disabled without vault key", func(t *testing.T) {
		h := newTestHandlers(t, "")
		rec := httptest.NewRecorder()
		h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/operations/autolineup", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("busy while another operation runs", func(t *testing.T) {
		h := newTestHandlers(t, "secret")
		release := make(chan struct{})
		op, err := h.components.Registry.Start(context.Background(), "Align teams", func(ctx context.Context) error {
			<-release
			return nil
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/operations/autolineup", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "server is currently busy with operation: Align teams")

		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, op.Wait(ctx))
	})

	t.Run("accepted and audited", func(t *testing.T) {
		h := newTestHandlers(t, "secret")
		rec := httptest.NewRecorder()
		h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/operations/autolineup", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)

		var started startResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
		assert.Equal(t, "Autolineup", started.Name)

		require.Eventually(t, func() bool {
			tasks, err := h.stores.Tasks.List(context.Background(), 0)
			return err == nil && len(tasks) == 1 && h.components.Registry.Current() == nil
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestValueSeries(t *testing.T) {
	ctx := context.Background()
	h := newTestHandlers(t, "")

	now := time.Now().UTC()
	season := &domain.Season{Name: "current", Start: now.AddDate(0, -2, 0), End: now.AddDate(0, 10, 0)}
	require.NoError(t, h.stores.Seasons.Insert(ctx, season))

	m := &domain.Manager{Email: "coach@example.com"}
	require.NoError(t, h.stores.Managers.Insert(ctx, m))

	_, err := h.components.Ledger.ImportSnapshot(ctx, m.ID, "NL", []int64{1, 2}, now.AddDate(0, -1, 0))
	require.NoError(t, err)

	points := int64(30)
	apps := int64(3)
	require.NoError(t, h.stores.Stats.InsertBulk(ctx, []*domain.PlayerStats{
		{PlayerID: 1, SeasonID: season.ID, ValidityDate: season.Start, Price: decimal.NewFromInt(4), HMPoints: &points, Appearances: &apps},
		{PlayerID: 2, SeasonID: season.ID, ValidityDate: season.Start, Price: decimal.NewFromInt(6)},
	}))

	rec := httptest.NewRecorder()
	h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/managers/1/teams/NL/value", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var series []ValuePoint
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&series))
	require.Len(t, series, 1)
	assert.Equal(t, "10", series[0].Value)
	assert.Equal(t, "16", series[0].TheoreticalValue)

	rec = httptest.NewRecorder()
	h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/managers/1/teams/NL/value?season=999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/managers/1/teams/NL/value?subs=oops", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
