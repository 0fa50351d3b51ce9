package version

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/dataset-processor/internal/dataframe"
	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/pkg/docstore"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// Collection names used in the document store.
const (
	CollectionVersions = "dataset_versions"
	CollectionLineage  = "transformation_lineage"
	collectionClaims   = "version_claims"
)

// staleClaimAge is how long a base claim without a stored version may
// live before another upload can take it over.
const staleClaimAge = 10 * time.Minute

var (
	// ErrVersionNotFound is returned when a version id does not exist.
	ErrVersionNotFound = errors.New("dataset version not found")
	// ErrLineageNotFound is returned for base versions and unknown lineage ids.
	ErrLineageNotFound = errors.New("transformation lineage not found")
	// ErrConcurrencyConflict is returned when another writer claimed the same
	// version number first. Callers may retry.
	ErrConcurrencyConflict = errors.New("concurrent version creation conflict")
	// ErrInvalidRetention is returned for non-positive retention periods.
	ErrInvalidRetention = errors.New("retention days must be greater than zero")
)

// IntegrityError reports a request that would break the version tree.
type IntegrityError struct {
	DatasetID string
	VersionID string
	Reason    string
}

func (e *IntegrityError) Error() string {
	if e.VersionID != "" {
		return fmt.Sprintf("lineage integrity violation for dataset %s (version %s): %s", e.DatasetID, e.VersionID, e.Reason)
	}
	return fmt.Sprintf("lineage integrity violation for dataset %s: %s", e.DatasetID, e.Reason)
}

// versionClaim reserves a unique key in the store: either a version number
// of a dataset or the dataset's single base slot (Number 0).
type versionClaim struct {
	Key       string    `json:"key"`
	DatasetID string    `json:"dataset_id"`
	VersionID string    `json:"version_id"`
	Number    int       `json:"version_number,omitempty"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// BaseVersionRequest describes the originally uploaded data of a dataset.
type BaseVersionRequest struct {
	DatasetID string
	UserID    string
	FilePath  string
	Frame     *dataframe.DataFrame
}

// DerivedVersionRequest describes a committed pipeline output.
type DerivedVersionRequest struct {
	ParentVersionID string
	UserID          string
	FilePath        string
	Frame           *dataframe.DataFrame
	Steps           []models.TransformationStep
	History         []models.HistoryEntry
	StartedAt       time.Time
}

// Manager maintains the version tree and lineage edges of every dataset.
type Manager struct {
	versions *docstore.Collection[models.DatasetVersion]
	lineage  *docstore.Collection[models.TransformationLineage]
	claims   *docstore.Collection[versionClaim]
	logger   logger.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager on top of store.
func NewManager(store docstore.Store, log logger.Logger) *Manager {
	return &Manager{
		versions: docstore.NewCollection(store, CollectionVersions, func(v *models.DatasetVersion) (string, string) {
			return v.ID, v.DatasetID
		}),
		lineage: docstore.NewCollection(store, CollectionLineage, func(l *models.TransformationLineage) (string, string) {
			return l.ID, l.DatasetID
		}),
		claims: docstore.NewCollection(store, collectionClaims, func(c *versionClaim) (string, string) {
			return c.Key, c.DatasetID
		}),
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		locks:  make(map[string]*sync.Mutex),
	}
}

// datasetLock serializes version creation per dataset within the process.
// Cross-process races are caught by the claim documents.
func (m *Manager) datasetLock(datasetID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[datasetID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[datasetID] = l
	}
	return l
}

// CreateBaseVersion records the root version of a dataset. A dataset has
// exactly one base version.
func (m *Manager) CreateBaseVersion(ctx context.Context, req BaseVersionRequest) (*models.DatasetVersion, error) {
	if req.DatasetID == "" || req.Frame == nil {
		return nil, fmt.Errorf("base version requires a dataset id and data")
	}
	lock := m.datasetLock(req.DatasetID)
	lock.Lock()
	defer lock.Unlock()

	versionID := uuid.New().String()
	if err := m.claimBase(ctx, req.DatasetID, versionID); err != nil {
		return nil, err
	}

	v := m.describe(versionID, req.DatasetID, req.UserID, req.FilePath, req.Frame)
	v.IsBaseVersion = true
	if err := m.commit(ctx, v, nil); err != nil {
		m.release(ctx, baseClaimKey(req.DatasetID))
		return nil, err
	}

	m.logger.Info("Base version created",
		logger.String("datasetId", v.DatasetID),
		logger.String("versionId", v.ID),
		logger.Int("rows", v.NumRows),
	)
	return v, nil
}

// CreateVersion records a derived version and the lineage edge from its
// parent. A missing parent is an IntegrityError.
func (m *Manager) CreateVersion(ctx context.Context, req DerivedVersionRequest) (*models.DatasetVersion, *models.TransformationLineage, error) {
	if req.Frame == nil {
		return nil, nil, fmt.Errorf("derived version requires data")
	}
	parent, err := m.versions.FindOne(ctx, req.ParentVersionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil, &IntegrityError{VersionID: req.ParentVersionID, Reason: "parent version does not exist"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load parent version: %w", err)
	}

	lock := m.datasetLock(parent.DatasetID)
	lock.Lock()
	defer lock.Unlock()

	v := m.describe(uuid.New().String(), parent.DatasetID, req.UserID, req.FilePath, req.Frame)
	v.ParentVersionID = &parent.ID

	completed := m.now()
	edge := &models.TransformationLineage{
		ID:                  uuid.New().String(),
		DatasetID:           parent.DatasetID,
		ParentVersionID:     parent.ID,
		ChildVersionID:      v.ID,
		TransformationSteps: req.Steps,
		History:             req.History,
		RowsBefore:          parent.NumRows,
		RowsAfter:           v.NumRows,
		ColumnsBefore:       parent.NumColumns,
		ColumnsAfter:        v.NumColumns,
		DataLossPercentage:  dataLoss(parent.NumRows, v.NumRows),
		QualityBefore:       parent.QualityScore,
		QualityAfter:        v.QualityScore,
		IsReproducible:      len(req.Steps) > 0 && len(req.History) == len(req.Steps),
		CreatedAt:           req.StartedAt,
		CompletedAt:         &completed,
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = completed
	}
	v.TransformationLineageID = &edge.ID

	if err := m.commit(ctx, v, edge); err != nil {
		return nil, nil, err
	}

	m.logger.Info("Version created",
		logger.String("datasetId", v.DatasetID),
		logger.String("versionId", v.ID),
		logger.String("parentId", parent.ID),
		logger.Int("versionNumber", v.VersionNumber),
		logger.Int("steps", len(req.Steps)),
	)
	return v, edge, nil
}

// claimBase reserves the base slot of a dataset. A claim left behind by a
// writer that never stored its version is taken over once it is stale.
func (m *Manager) claimBase(ctx context.Context, datasetID, versionID string) error {
	claim := &versionClaim{
		Key:       baseClaimKey(datasetID),
		DatasetID: datasetID,
		VersionID: versionID,
		ClaimedAt: m.now(),
	}
	err := m.claims.Insert(ctx, claim)
	if errors.Is(err, docstore.ErrDuplicateKey) {
		if !m.staleBaseClaim(ctx, claim.Key) {
			return &IntegrityError{DatasetID: datasetID, Reason: "dataset already has a base version"}
		}
		m.logger.Warn("Taking over stale base claim", logger.String("datasetId", datasetID))
		if err := m.claims.Delete(ctx, claim.Key); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("failed to release stale base claim: %w", err)
		}
		err = m.claims.Insert(ctx, claim)
		if errors.Is(err, docstore.ErrDuplicateKey) {
			return &IntegrityError{DatasetID: datasetID, Reason: "dataset already has a base version"}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to claim base version: %w", err)
	}
	return nil
}

func (m *Manager) staleBaseClaim(ctx context.Context, key string) bool {
	existing, err := m.claims.FindOne(ctx, key)
	if err != nil {
		return false
	}
	if _, err := m.versions.FindOne(ctx, existing.VersionID); !errors.Is(err, docstore.ErrNotFound) {
		return false
	}
	return m.now().Sub(existing.ClaimedAt) > staleClaimAge
}

// release drops a claim whose version was never stored. It runs even when
// ctx is already cancelled.
func (m *Manager) release(ctx context.Context, key string) {
	if err := m.claims.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		m.logger.Error("Failed to release version claim",
			logger.String("claim", key),
			logger.Error(err),
		)
	}
}

// commit assigns the next version number and persists the version (and its
// edge). Must be called with the dataset lock held. Numbers are taken above
// both stored versions and outstanding claims, so a claim orphaned by a
// crash leaves a gap instead of blocking the dataset.
func (m *Manager) commit(ctx context.Context, v *models.DatasetVersion, edge *models.TransformationLineage) error {
	existing, err := m.versions.Find(ctx, v.DatasetID)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	claimed, err := m.claims.Find(ctx, v.DatasetID)
	if err != nil {
		return fmt.Errorf("failed to list version claims: %w", err)
	}
	next := 1
	for _, e := range existing {
		if e.VersionNumber >= next {
			next = e.VersionNumber + 1
		}
	}
	for _, c := range claimed {
		if c.Number >= next {
			next = c.Number + 1
		}
	}
	v.VersionNumber = next

	key := numberClaimKey(v.DatasetID, next)
	err = m.claims.Insert(ctx, &versionClaim{
		Key:       key,
		DatasetID: v.DatasetID,
		VersionID: v.ID,
		Number:    next,
		ClaimedAt: m.now(),
	})
	if errors.Is(err, docstore.ErrDuplicateKey) {
		m.logger.Warn("Version number already claimed",
			logger.String("datasetId", v.DatasetID),
			logger.Int("versionNumber", next),
		)
		return fmt.Errorf("%w: version %d of dataset %s", ErrConcurrencyConflict, next, v.DatasetID)
	}
	if err != nil {
		return fmt.Errorf("failed to claim version number: %w", err)
	}

	if edge != nil {
		if err := m.lineage.Insert(ctx, edge); err != nil {
			m.release(ctx, key)
			return fmt.Errorf("failed to store lineage: %w", err)
		}
	}
	if err := m.versions.Insert(ctx, v); err != nil {
		if edge != nil {
			if derr := m.lineage.Delete(context.WithoutCancel(ctx), edge.ID); derr != nil && !errors.Is(derr, docstore.ErrNotFound) {
				m.logger.Error("Failed to remove lineage of unstored version",
					logger.String("lineageId", edge.ID),
					logger.Error(derr),
				)
			}
		}
		m.release(ctx, key)
		return fmt.Errorf("failed to store version: %w", err)
	}
	return nil
}

func (m *Manager) describe(id, datasetID, userID, filePath string, df *dataframe.DataFrame) *models.DatasetVersion {
	hashes := dataframe.ColumnHashes(df)
	columns := make([]models.ColumnInfo, 0, df.NumColumns())
	for _, s := range df.Series() {
		columns = append(columns, models.ColumnInfo{Name: s.Name, DType: string(s.DType), Hash: hashes[s.Name]})
	}
	return &models.DatasetVersion{
		ID:           id,
		DatasetID:    datasetID,
		FilePath:     filePath,
		ContentHash:  dataframe.ContentHash(df),
		SchemaHash:   dataframe.SchemaHash(df),
		NumRows:      df.NumRows(),
		NumColumns:   df.NumColumns(),
		Columns:      columns,
		QualityScore: dataframe.QualityScore(df),
		CreatedAt:    m.now(),
		CreatedBy:    userID,
	}
}

// GetVersion loads one version.
func (m *Manager) GetVersion(ctx context.Context, versionID string) (*models.DatasetVersion, error) {
	v, err := m.versions.FindOne(ctx, versionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load version: %w", err)
	}
	return v, nil
}

// ListVersions returns the versions of a dataset by version number.
func (m *Manager) ListVersions(ctx context.Context, datasetID string) ([]*models.DatasetVersion, error) {
	versions, err := m.versions.Find(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionNumber < versions[j].VersionNumber })
	return versions, nil
}

// LatestVersion returns the highest-numbered version of a dataset.
func (m *Manager) LatestVersion(ctx context.Context, datasetID string) (*models.DatasetVersion, error) {
	versions, err := m.ListVersions(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: dataset %s has no versions", ErrVersionNotFound, datasetID)
	}
	return versions[len(versions)-1], nil
}

// GetLineage returns the edge that produced versionID.
func (m *Manager) GetLineage(ctx context.Context, versionID string) (*models.TransformationLineage, error) {
	v, err := m.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.TransformationLineageID == nil {
		return nil, fmt.Errorf("%w: version %s is a base version", ErrLineageNotFound, versionID)
	}
	edge, err := m.lineage.FindOne(ctx, *v.TransformationLineageID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrLineageNotFound, *v.TransformationLineageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage: %w", err)
	}
	return edge, nil
}

// ListLineage returns every edge of a dataset in creation order.
func (m *Manager) ListLineage(ctx context.Context, datasetID string) ([]*models.TransformationLineage, error) {
	edges, err := m.lineage.Find(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].CreatedAt.Before(edges[j].CreatedAt) })
	return edges, nil
}

// Ancestors returns the path from the root to versionID, inclusive.
func (m *Manager) Ancestors(ctx context.Context, versionID string) ([]*models.DatasetVersion, error) {
	var path []*models.DatasetVersion
	seen := make(map[string]bool)
	id := versionID
	for {
		if seen[id] {
			return nil, &IntegrityError{VersionID: id, Reason: "cycle in version tree"}
		}
		seen[id] = true
		v, err := m.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		path = append(path, v)
		if v.ParentVersionID == nil {
			break
		}
		id = *v.ParentVersionID
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Pin sets the pinned flag.
func (m *Manager) Pin(ctx context.Context, versionID string, pinned bool) (*models.DatasetVersion, error) {
	v, err := m.versions.Update(ctx, versionID, func(v *models.DatasetVersion) error {
		v.IsPinned = pinned
		return nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	return v, err
}

// SetRetention sets the retention period counted from creation. A nil days
// clears it.
func (m *Manager) SetRetention(ctx context.Context, versionID string, days *int) (*models.DatasetVersion, error) {
	if days != nil && *days <= 0 {
		return nil, ErrInvalidRetention
	}
	v, err := m.versions.Update(ctx, versionID, func(v *models.DatasetVersion) error {
		if days == nil {
			v.RetentionDays = nil
			v.ExpiresAt = nil
			return nil
		}
		d := *days
		expires := v.CreatedAt.AddDate(0, 0, d)
		v.RetentionDays = &d
		v.ExpiresAt = &expires
		return nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	return v, err
}

func baseClaimKey(datasetID string) string {
	return "base:" + datasetID
}

func numberClaimKey(datasetID string, n int) string {
	return fmt.Sprintf("%s:%d", datasetID, n)
}

func dataLoss(before, after int) float64 {
	if before == 0 || after >= before {
		return 0
	}
	return math.Round(float64(before-after)/float64(before)*10000) / 100
}
