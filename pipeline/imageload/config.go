package imageload

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/fedflow/pipeline/mount"
)

// Section is the config.yml section read by this strategy.
const Section = "fc_image_loader"

// FolderLabels selects class folder names as labels.
const FolderLabels = "folder"

// Config is the fc_image_loader section.
type Config struct {
	LocalDataset LocalDataset  `yaml:"local_dataset" validate:"required"`
	Resize       *ResizeConfig `yaml:"image_resize" validate:"omitempty"`
	Crop         *CropConfig   `yaml:"image_crop" validate:"omitempty"`
}

// LocalDataset describes where the images live and how they are labelled.
type LocalDataset struct {
	DSDir       string   `yaml:"ds_dir" validate:"required"`
	ImageFormat []string `yaml:"image_format" validate:"required,min=1,dive,required"`
	TargetValue string   `yaml:"target_value" validate:"required,eq=folder|endswith=.csv|endswith=.txt"`
	Sep         string   `yaml:"sep" validate:"omitempty,len=1"`
}

// UnmarshalYAML accepts local_dataset as a nested block or, in the older
// layout, its keys placed directly under the section.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		LocalDataset *LocalDataset `yaml:"local_dataset"`
		Resize       *ResizeConfig `yaml:"image_resize"`
		Crop         *CropConfig   `yaml:"image_crop"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	c.Resize, c.Crop = raw.Resize, raw.Crop
	if raw.LocalDataset != nil {
		c.LocalDataset = *raw.LocalDataset
		return nil
	}
	return node.Decode(&c.LocalDataset)
}

// UnmarshalYAML takes image_format as a list or a single value, and the
// older labels key in place of target_value.
func (d *LocalDataset) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		DSDir       string    `yaml:"ds_dir"`
		ImageFormat yaml.Node `yaml:"image_format"`
		TargetValue string    `yaml:"target_value"`
		Labels      string    `yaml:"labels"`
		Sep         string    `yaml:"sep"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*d = LocalDataset{DSDir: raw.DSDir, TargetValue: raw.TargetValue, Sep: raw.Sep}
	if d.TargetValue == "" {
		d.TargetValue = raw.Labels
	}
	switch raw.ImageFormat.Kind {
	case 0:
	case yaml.ScalarNode:
		d.ImageFormat = []string{raw.ImageFormat.Value}
	default:
		if err := raw.ImageFormat.Decode(&d.ImageFormat); err != nil {
			return err
		}
	}
	return nil
}

// ResizeConfig is the target size in pixels.
type ResizeConfig struct {
	Width  int `yaml:"width" validate:"gt=0"`
	Height int `yaml:"height" validate:"gt=0"`
}

// CropConfig is a rectangle with its top-left corner at (X, Y).
type CropConfig struct {
	X      int `yaml:"x_coordinate" validate:"gte=0"`
	Y      int `yaml:"y_coordinate" validate:"gte=0"`
	Width  int `yaml:"width" validate:"gt=0"`
	Height int `yaml:"height" validate:"gt=0"`
}

// LoadConfig reads and validates the section from path.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := mount.LoadSection(path, Section, cfg); err != nil {
		return nil, err
	}
	if cfg.LocalDataset.Sep == "" {
		cfg.LocalDataset.Sep = ","
	}
	for i, f := range cfg.LocalDataset.ImageFormat {
		cfg.LocalDataset.ImageFormat[i] = strings.ToLower(strings.TrimPrefix(f, "."))
	}
	return cfg, nil
}

// UsesLabelsFile reports whether labels come from a per-folder file.
func (c *Config) UsesLabelsFile() bool {
	return c.LocalDataset.TargetValue != FolderLabels
}
