package transformation

import (
	"context"
	"fmt"

	"github.com/feichai0017/dataset-processor/internal/models"
	"github.com/feichai0017/dataset-processor/pkg/converters"
	"github.com/feichai0017/dataset-processor/pkg/logger"
)

// ExportRecipe renders a config's steps as a YAML recipe.
func (s *ConfigService) ExportRecipe(ctx context.Context, configID string) ([]byte, error) {
	cfg, err := s.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	recipe := &models.Recipe{
		Name:          cfg.ID,
		Version:       models.RecipeVersion,
		DatasetID:     cfg.DatasetID,
		SourceVersion: cfg.SourceVersionID,
		Steps:         cfg.Steps,
		Meta: map[string]string{
			"exported_by": cfg.UserID,
			"revision":    fmt.Sprint(cfg.Revision),
		},
	}
	return converters.NewRecipeConverter().Marshal(recipe)
}

// ImportRecipe creates a new config from a YAML recipe. A non-empty
// datasetID overrides the recipe's dataset.
func (s *ConfigService) ImportRecipe(ctx context.Context, data []byte, userID, datasetID string) (*models.TransformationConfig, error) {
	recipe, err := converters.NewRecipeConverter().Unmarshal(data)
	if err != nil {
		return nil, err
	}
	req := CreateConfigRequest{
		UserID:          userID,
		DatasetID:       recipe.DatasetID,
		SourceVersionID: recipe.SourceVersion,
		Steps:           recipe.Steps,
	}
	if datasetID != "" && datasetID != recipe.DatasetID {
		req.DatasetID = datasetID
		req.SourceVersionID = ""
	}

	cfg, err := s.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Recipe imported",
		logger.String("configId", cfg.ID),
		logger.String("recipe", recipe.Name),
	)
	return cfg, nil
}
