package version

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// Compare diffs two versions structurally. Neither version has to be an
// ancestor of the other; when they are on the same root-to-leaf path the
// path between them is included.
func (m *Manager) Compare(ctx context.Context, version1ID, version2ID string) (*models.VersionComparison, error) {
	var v1, v2 *models.DatasetVersion
	var path1, path2 []*models.DatasetVersion

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		path1, err = m.Ancestors(gctx, version1ID)
		return err
	})
	g.Go(func() error {
		var err error
		path2, err = m.Ancestors(gctx, version2ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	v1 = path1[len(path1)-1]
	v2 = path2[len(path2)-1]

	cmp := &models.VersionComparison{
		Version1ID:       v1.ID,
		Version2ID:       v2.ID,
		RowCountDelta:    v2.NumRows - v1.NumRows,
		ColumnCountDelta: v2.NumColumns - v1.NumColumns,
		ColumnsAdded:     []string{},
		ColumnsRemoved:   []string{},
		ColumnsRenamed:   []models.ColumnRename{},
		DTypeChanges:     map[string]models.DTypeChange{},
		SchemaChanged:    v1.SchemaHash != v2.SchemaHash,
		ContentIdentical: v1.ContentHash == v2.ContentHash,
		QualityDelta:     round(v2.QualityScore-v1.QualityScore, 2),
	}

	before := columnsByName(v1)
	after := columnsByName(v2)

	var removed, added []models.ColumnInfo
	for _, c := range v1.Columns {
		other, ok := after[c.Name]
		if !ok {
			removed = append(removed, c)
			continue
		}
		if other.DType != c.DType {
			cmp.DTypeChanges[c.Name] = models.DTypeChange{From: c.DType, To: other.DType}
		}
	}
	for _, c := range v2.Columns {
		if _, ok := before[c.Name]; !ok {
			added = append(added, c)
		}
	}

	// a removed and an added column with the same values is a rename
	renamedTo := make(map[string]bool)
	for _, r := range removed {
		match := ""
		for _, a := range added {
			if !renamedTo[a.Name] && a.Hash == r.Hash {
				match = a.Name
				break
			}
		}
		if match == "" {
			cmp.ColumnsRemoved = append(cmp.ColumnsRemoved, r.Name)
			continue
		}
		renamedTo[match] = true
		cmp.ColumnsRenamed = append(cmp.ColumnsRenamed, models.ColumnRename{From: r.Name, To: match})
	}
	for _, a := range added {
		if !renamedTo[a.Name] {
			cmp.ColumnsAdded = append(cmp.ColumnsAdded, a.Name)
		}
	}
	sort.Strings(cmp.ColumnsAdded)
	sort.Strings(cmp.ColumnsRemoved)

	cmp.SimilarityScore = similarity(v1, v2)
	cmp.SameLineagePath, cmp.LineagePath = lineagePath(path1, path2)

	m.logger.Debug("Versions compared",
		logger.String("version1", v1.ID),
		logger.String("version2", v2.ID),
		logger.Float64("similarity", cmp.SimilarityScore),
		logger.Bool("sameLineagePath", cmp.SameLineagePath),
	)
	return cmp, nil
}

func columnsByName(v *models.DatasetVersion) map[string]models.ColumnInfo {
	out := make(map[string]models.ColumnInfo, len(v.Columns))
	for _, c := range v.Columns {
		out[c.Name] = c
	}
	return out
}

// similarity is 1 for identical content, otherwise the share of column
// content hashes both versions have in common, damped by the row ratio.
func similarity(v1, v2 *models.DatasetVersion) float64 {
	if v1.ContentHash == v2.ContentHash {
		return 1
	}
	if len(v1.Columns) == 0 && len(v2.Columns) == 0 {
		return 0
	}
	pool := make(map[string]int, len(v1.Columns))
	for _, c := range v1.Columns {
		pool[c.Hash]++
	}
	shared := 0
	for _, c := range v2.Columns {
		if pool[c.Hash] > 0 {
			pool[c.Hash]--
			shared++
		}
	}
	union := len(v1.Columns) + len(v2.Columns) - shared
	score := float64(shared) / float64(union)

	lo, hi := v1.NumRows, v2.NumRows
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi > 0 {
		score = (score + float64(lo)/float64(hi)) / 2
	}
	return round(score, 4)
}

// lineagePath reports whether one version is an ancestor of the other and,
// if so, the ids from the older to the newer version.
func lineagePath(path1, path2 []*models.DatasetVersion) (bool, []string) {
	if ids, ok := subPath(path2, path1[len(path1)-1].ID); ok {
		return true, ids
	}
	if ids, ok := subPath(path1, path2[len(path2)-1].ID); ok {
		return true, ids
	}
	return false, nil
}

func subPath(path []*models.DatasetVersion, fromID string) ([]string, bool) {
	for i, v := range path {
		if v.ID != fromID {
			continue
		}
		ids := make([]string, 0, len(path)-i)
		for _, p := range path[i:] {
			ids = append(ids, p.ID)
		}
		return ids, true
	}
	return nil, false
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
