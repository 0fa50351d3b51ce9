package dataset

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/service/version"
	"github.com/feichai0017/dataset-processor/pkg/docstore"
	"github.com/feichai0017/dataset-processor/pkg/logger"
	"github.com/feichai0017/dataset-processor/pkg/storage"
	"github.com/feichai0017/dataset-processor/pkg/storage/memory"
)

const customersCSV = "name,age\n Ann ,30\nBob,\nBob,\n"

type fixedSuggester []string

func (f fixedSuggester) SuggestTransformations(*dataframe.DataFrame) []string { return f }

func newService(t *testing.T, cfg *ServiceConfig) (*Service, *memory.Storage, *version.Manager) {
	t.Helper()
	blobs := memory.New()
	versions := version.NewManager(docstore.NewMemoryStore(), logger.NewTestLogger())
	svc := NewService(blobs, versions, fixedSuggester{"Remove 1 duplicate rows"}, logger.NewTestLogger(), cfg)
	return svc, blobs, versions
}

func TestUpload_CreatesBaseVersion(t *testing.T) {
	ctx := context.Background()
	svc, blobs, versions := newService(t, nil)

	result, err := svc.Upload(ctx, UploadRequest{
		UserID:    "u1",
		DatasetID: "ds1",
		Filename:  "customers.csv",
		Reader:    strings.NewReader(customersCSV),
	})
	require.NoError(t, err)
	assert.Equal(t, "ds1", result.DatasetID)
	assert.Equal(t, []string{"Remove 1 duplicate rows"}, result.Suggestions)

	v := result.Version
	assert.True(t, v.IsBaseVersion)
	assert.True(t, strings.HasPrefix(v.FilePath, "datasets/ds1/raw/"))
	assert.True(t, strings.HasSuffix(v.FilePath, "/customers.csv"))
	assert.Equal(t, 3, v.NumRows)
	assert.Equal(t, "u1", v.CreatedBy)
	assert.Contains(t, blobs.Keys(), v.FilePath)

	latest, err := versions.LatestVersion(ctx, "ds1")
	require.NoError(t, err)
	assert.Equal(t, v.ID, latest.ID)

	// the stored object parses back to the same content
	df, err := svc.LoadFrame(ctx, v.FilePath)
	require.NoError(t, err)
	assert.Equal(t, v.ContentHash, dataframe.ContentHash(df))
}

func TestUpload_GeneratesDatasetID(t *testing.T) {
	svc, _, _ := newService(t, nil)
	result, err := svc.Upload(context.Background(), UploadRequest{Filename: "a.CSV", Reader: strings.NewReader("x\n1\n")})
	require.NoError(t, err)
	assert.NotEmpty(t, result.DatasetID)
}

func TestUpload_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, &ServiceConfig{MaxFileSize: 16, AllowedTypes: []string{".csv"}})

	_, err := svc.Upload(ctx, UploadRequest{Filename: "data.xlsx", Reader: strings.NewReader("x\n1\n")})
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	_, err = svc.Upload(ctx, UploadRequest{Filename: "big.csv", Reader: strings.NewReader(strings.Repeat("a\n", 20))})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.Upload(ctx, UploadRequest{Filename: "empty.csv", Reader: strings.NewReader("")})
	assert.Error(t, err)
}

func TestUpload_SecondBaseVersionRejected(t *testing.T) {
	ctx := context.Background()
	svc, blobs, _ := newService(t, nil)
	first, err := svc.Upload(ctx, UploadRequest{DatasetID: "ds1", Filename: "a.csv", Reader: strings.NewReader("a\n1\n2\n")})
	require.NoError(t, err)

	// same dataset and filename
	_, err = svc.Upload(ctx, UploadRequest{DatasetID: "ds1", Filename: "a.csv", Reader: strings.NewReader("a\n999\n")})
	var integrity *version.IntegrityError
	assert.ErrorAs(t, err, &integrity)

	assert.Equal(t, []string{first.Version.FilePath}, blobs.Keys())
	reader, err := blobs.Get(ctx, first.Version.FilePath)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n2\n", string(data))

	df, err := svc.LoadFrame(ctx, first.Version.FilePath)
	require.NoError(t, err)
	assert.Equal(t, first.Version.ContentHash, dataframe.ContentHash(df))
}

// failingStore fails every insert into one collection.
type failingStore struct {
	docstore.Store
	collection string
}

func (s *failingStore) Insert(ctx context.Context, collection string, doc docstore.Document) error {
	if collection == s.collection {
		return errors.New("connection reset")
	}
	return s.Store.Insert(ctx, collection, doc)
}

func TestUpload_FailedVersionRemovesFile(t *testing.T) {
	blobs := memory.New()
	store := &failingStore{Store: docstore.NewMemoryStore(), collection: version.CollectionVersions}
	versions := version.NewManager(store, logger.NewTestLogger())
	svc := NewService(blobs, versions, nil, logger.NewTestLogger(), nil)

	_, err := svc.Upload(context.Background(), UploadRequest{DatasetID: "ds1", Filename: "a.csv", Reader: strings.NewReader("a\n1\n")})
	require.Error(t, err)
	assert.Empty(t, blobs.Keys())
}

func TestSaveAndLoadFrame(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, nil)
	df, err := dataframe.FromRows([]string{"id", "score"}, [][]any{{int64(1), 2.5}, {int64(2), nil}})
	require.NoError(t, err)

	key, stored, err := svc.SaveFrame(ctx, df, "staging/ds1/out.csv")
	require.NoError(t, err)
	assert.Equal(t, "staging/ds1/out.csv", key)
	assert.True(t, df.Equal(stored))

	loaded, err := svc.LoadFrame(ctx, key)
	require.NoError(t, err)
	assert.True(t, df.Equal(loaded))

	require.NoError(t, svc.DeleteFrame(ctx, key))
	require.NoError(t, svc.DeleteFrame(ctx, key))
	_, err = svc.LoadFrame(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.LoadFrame(ctx, "missing.csv")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveFrame_ReturnsFrameAsStored(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t, nil)
	// a numeric-looking string column is re-inferred on load
	df, err := dataframe.FromRows([]string{"code"}, [][]any{{"1"}, {"2"}})
	require.NoError(t, err)
	require.Equal(t, dataframe.DTypeString, df.DTypes()["code"])

	key, stored, err := svc.SaveFrame(ctx, df, "staging/ds1/codes.csv")
	require.NoError(t, err)
	assert.Equal(t, dataframe.DTypeInt, stored.DTypes()["code"])

	loaded, err := svc.LoadFrame(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, dataframe.ContentHash(loaded), dataframe.ContentHash(stored))
	assert.Equal(t, dataframe.SchemaHash(loaded), dataframe.SchemaHash(stored))
}

func TestUploadBatch(t *testing.T) {
	svc, _, _ := newService(t, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("x,y\n1,2\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	defer form.RemoveAll()

	results, err := svc.UploadBatch(context.Background(), "u1", form.File["files"])
	require.NoError(t, err)
	require.Len(t, results, 3)

	ids := map[string]bool{}
	for _, r := range results {
		ids[r.DatasetID] = true
		assert.Equal(t, 1, r.Version.NumRows)
	}
	assert.Len(t, ids, 3)
}

func TestCleanupStaging(t *testing.T) {
	ctx := context.Background()
	svc, blobs, _ := newService(t, &ServiceConfig{AllowedTypes: []string{".csv"}, StagingRetention: time.Hour})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now.Add(-2 * time.Hour)
	blobs.WithClock(func() time.Time { return clock })
	svc.now = func() time.Time { return now }

	df, err := dataframe.FromRows([]string{"x"}, [][]any{{int64(1)}})
	require.NoError(t, err)
	_, _, err = svc.SaveFrame(ctx, df, "staging/ds1/old.csv")
	require.NoError(t, err)
	_, _, err = svc.SaveFrame(ctx, df, "datasets/ds1/kept.csv")
	require.NoError(t, err)
	clock = now
	_, _, err = svc.SaveFrame(ctx, df, "staging/ds1/new.csv")
	require.NoError(t, err)

	removed, err := svc.CleanupStaging(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.ElementsMatch(t, []string{"datasets/ds1/kept.csv", "staging/ds1/new.csv"}, blobs.Keys())
}
