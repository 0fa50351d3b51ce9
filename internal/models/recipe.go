package models

// Recipe is the portable form of a transformation config, exported as YAML
// so a pipeline can be reviewed, versioned alongside code and re-imported.
type Recipe struct {
	Name          string               `yaml:"name" json:"name"`
	Version       int                  `yaml:"recipe-version" json:"recipe_version"`
	DatasetID     string               `yaml:"dataset" json:"dataset_id"`
	SourceVersion string               `yaml:"source-version,omitempty" json:"source_version,omitempty"`
	Description   string               `yaml:"description,omitempty" json:"description,omitempty"`
	Steps         []TransformationStep `yaml:"steps" json:"steps"`
	Meta          map[string]string    `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// RecipeVersion is the current recipe format.
const RecipeVersion = 1
