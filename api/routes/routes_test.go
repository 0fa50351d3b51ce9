package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/dataset-processor/api/handlers"
	"github.com/feichai0017/dataset-processor/api/middleware"
	"github.com/feichai0017/dataset-processor/internal/engine"
	"github.com/feichai0017/dataset-processor/internal/service/dataset"
	"github.com/feichai0017/dataset-processor/internal/service/transformation"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/internal/transform"
	"github.com/feichai0017/dataset-processor/internal/utils/validator"
	"github.com/feichai0017/dataset-processor/pkg/docstore"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/storage/memory"
)

const customersCSV = "name,age\n Ann ,30\nBob,\nBob,\nCid,40\n"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewTestLogger()
	store := docstore.NewMemoryStore()
	registry := transform.NewRegistry()
	v := validator.NewTransformationValidator(registry, log, nil)
	newEngine := func() *engine.Engine { return engine.New(registry, v, log, nil) }

	versions := version.NewManager(store, log)
	datasets := dataset.NewService(memory.New(), versions, v, log, nil)
	configs := transformation.NewConfigService(store, registry, versions, datasets, newEngine, log)
	pipeline := transformation.NewPipelineService(configs, versions, datasets, newEngine, log)

	h := handlers.NewHandlers(&handlers.Services{
		Registry:  registry,
		Validator: v,
		Datasets:  datasets,
		Configs:   configs,
		Pipeline:  pipeline,
		Versions:  versions,
	}, log)

	r := gin.New()
	SetupRoutes(r, h, log, []string{"*"})
	return r
}

func do(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func upload(t *testing.T, r http.Handler, datasetID, content string) map[string]any {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("dataset_id", datasetID))
	part, err := mw.CreateFormFile("file", "customers.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.UserIDHeader, "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func TestHealth(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestMutationsRequireIdentity(t *testing.T) {
	r := newRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/configs", bytes.NewBufferString(`{"dataset_id":"ds1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// reads do not
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transformations/types", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConfigApplyAndVersionEndpoints(t *testing.T) {
	r := newRouter(t)
	uploaded := upload(t, r, "ds1", customersCSV)
	baseID := uploaded["version"].(map[string]any)["version_id"].(string)

	w := do(t, r, http.MethodPost, "/api/v1/configs", map[string]any{"dataset_id": "ds1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	configID := decode(t, w)["config_id"].(string)

	for _, step := range []map[string]any{
		{"type": "remove_duplicates"},
		{"type": "fill_missing", "column": "age", "parameters": map[string]any{"method": "mean"}},
	} {
		w = do(t, r, http.MethodPost, "/api/v1/configs/"+configID+"/steps", step)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodPost, "/api/v1/configs/"+configID+"/validate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["is_valid"])

	w = do(t, r, http.MethodPost, "/api/v1/configs/"+configID+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	applied := decode(t, w)
	assert.Equal(t, true, applied["success"])
	child := applied["version"].(map[string]any)
	childID := child["version_id"].(string)
	assert.Equal(t, float64(2), child["version_number"])
	assert.Equal(t, baseID, child["parent_version_id"])

	w = do(t, r, http.MethodGet, "/api/v1/versions?dataset_id=ds1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["total"])

	w = do(t, r, http.MethodPost, "/api/v1/versions/compare", map[string]any{"version1_id": baseID, "version2_id": childID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cmp := decode(t, w)
	assert.Equal(t, true, cmp["same_lineage_path"])

	w = do(t, r, http.MethodGet, "/api/v1/versions/"+childID+"/lineage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	edge := decode(t, w)
	assert.Equal(t, float64(4), edge["rows_before"])
	assert.Equal(t, float64(3), edge["rows_after"])

	w = do(t, r, http.MethodGet, "/api/v1/lineage?dataset_id=ds1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["lineage"], 1)

	w = do(t, r, http.MethodPut, "/api/v1/versions/"+childID+"/pin", map[string]any{"is_pinned": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["is_pinned"])

	w = do(t, r, http.MethodPut, "/api/v1/versions/"+childID+"/retention", map[string]any{"retention_days": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodPut, "/api/v1/versions/"+childID+"/retention", map[string]any{"retention_days": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["expires_at"])

	w = do(t, r, http.MethodGet, "/api/v1/versions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecipeExportImport(t *testing.T) {
	r := newRouter(t)
	upload(t, r, "ds1", customersCSV)

	w := do(t, r, http.MethodPost, "/api/v1/configs", map[string]any{
		"dataset_id":      "ds1",
		"transformations": []map[string]any{{"type": "trim_whitespace", "columns": []string{"name"}}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	configID := decode(t, w)["config_id"].(string)

	w = do(t, r, http.MethodGet, "/api/v1/configs/"+configID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "trim_whitespace")
	recipe := w.Body.Bytes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/configs/import?dataset_id=ds2", bytes.NewReader(recipe))
	req.Header.Set(middleware.UserIDHeader, "u2")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	imported := decode(t, w)
	assert.Equal(t, "ds2", imported["dataset_id"])
	assert.Equal(t, "u2", imported["user_id"])
	assert.NotEqual(t, configID, imported["config_id"])
}

func TestPipelineFailureReportsStep(t *testing.T) {
	r := newRouter(t)
	upload(t, r, "ds1", customersCSV)

	w := do(t, r, http.MethodPost, "/api/v1/transformations/pipeline", map[string]any{
		"dataset_id": "ds1",
		"transformations": []map[string]any{
			{"type": "trim_whitespace"},
			{"type": "convert_type", "column": "name", "parameters": map[string]any{"target_type": "int"}},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, float64(1), out["failed_step"])
}

func TestAsyncApplyWithoutQueue(t *testing.T) {
	r := newRouter(t)
	upload(t, r, "ds1", customersCSV)
	w := do(t, r, http.MethodPost, "/api/v1/configs", map[string]any{"dataset_id": "ds1"})
	require.Equal(t, http.StatusCreated, w.Code)
	configID := decode(t, w)["config_id"].(string)

	w = do(t, r, http.MethodPost, "/api/v1/configs/"+configID+"/apply?async=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/tasks/t1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
