package imageload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/pipeline/mount"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/wire"
)

// Name is the strategy name used in configuration.
const Name = "imageload"

// Transform names.
const (
	StepResize = "resize"
	StepCrop   = "crop"
)

// Dataset is the artifact passed between phases.
type Dataset struct {
	Samples []Sample
}

// Output is what Emit writes.
type Output struct {
	Names   []string `json:"names"`
	Labels  []string `json:"labels"`
	Samples []Tensor `json:"samples"`
}

// Output converts the samples to tensors.
func (d *Dataset) Output() Output {
	return Output{
		Names:   lo.Map(d.Samples, func(s Sample, _ int) string { return s.Name }),
		Labels:  lo.Map(d.Samples, func(s Sample, _ int) string { return s.Label }),
		Samples: lo.Map(d.Samples, func(s Sample, _ int) Tensor { return toTensor(s.Image) }),
	}
}

// MarshalBinary stores the raw dataset as JSON tensors.
func (d *Dataset) MarshalBinary() ([]byte, error) {
	return json.Marshal(d.Output())
}

// Strategy loads an image dataset. One instance serves one participant.
type Strategy struct {
	mounts mount.Mounts
	cfg    *Config
}

// New creates the strategy reading its config from mounts.Input.
func New(mounts mount.Mounts) *Strategy {
	return &Strategy{mounts: mounts}
}

// Config returns the loaded configuration, nil before Configure.
func (s *Strategy) Config() *Config { return s.cfg }

func (s *Strategy) Configure(_ context.Context, env session.Env) (session.Plan, error) {
	cfg, err := LoadConfig(s.mounts.ConfigPath())
	if err != nil {
		return session.Plan{}, err
	}
	if err := mount.CopyInto(s.mounts.ConfigPath(), s.mounts.Output); err != nil {
		return session.Plan{}, fmt.Errorf("copy config: %w", err)
	}
	s.cfg = cfg

	env.Logger().Info("image loader configured",
		zap.String("ds_dir", cfg.LocalDataset.DSDir),
		zap.Strings("formats", cfg.LocalDataset.ImageFormat),
		zap.String("target", cfg.LocalDataset.TargetValue))

	return session.Plan{Transforms: []session.Transform{
		{Name: StepResize, Enabled: cfg.Resize != nil},
		{Name: StepCrop, Enabled: cfg.Crop != nil},
	}}, nil
}

func (s *Strategy) Ingest(ctx context.Context, env session.Env, in session.Dataset) (session.Artifact, error) {
	root := filepath.Join(in.Root, s.cfg.LocalDataset.DSDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return session.Artifact{}, fmt.Errorf("read dataset dir: %w", err)
	}
	folders := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), e.IsDir()
	})
	env.Progress(0.1, fmt.Sprintf("reading %s", root))

	ds := &Dataset{}
	for i, folder := range folders {
		if err := ctx.Err(); err != nil {
			return session.Artifact{}, err
		}
		samples, err := s.loadFolder(filepath.Join(root, folder), folder)
		if err != nil {
			return session.Artifact{}, err
		}
		env.Logger().Debug("folder loaded", zap.String("folder", folder), zap.Int("images", len(samples)))
		ds.Samples = append(ds.Samples, samples...)
		env.Progress(0.1+0.2*float64(i+1)/float64(len(folders)), "loading "+folder)
	}

	env.Logger().Info("images loaded", zap.Int("samples", len(ds.Samples)), zap.Int("folders", len(folders)))
	env.Progress(0.3, "images loaded")
	return session.Artifact{Name: "samples", Value: ds}, nil
}

// loadFolder reads every matching image in dir, sorted by name.
func (s *Strategy) loadFolder(dir, folder string) ([]Sample, error) {
	var labels map[string]string
	if s.cfg.UsesLabelsFile() {
		var err error
		labels, err = readLabels(filepath.Join(dir, s.cfg.LocalDataset.TargetValue), s.cfg.LocalDataset.Sep)
		if err != nil {
			return nil, fmt.Errorf("folder %s: %w", folder, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var samples []Sample
	for _, e := range entries {
		if e.IsDir() || !matchesFormat(e.Name(), s.cfg.LocalDataset.ImageFormat) {
			continue
		}
		img, err := decodeImage(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		label := folder
		if labels != nil {
			l, ok := labels[e.Name()]
			if !ok {
				return nil, fmt.Errorf("folder %s: no label for %s", folder, e.Name())
			}
			label = l
		}
		samples = append(samples, Sample{Name: e.Name(), Label: label, Image: img})
	}
	return samples, nil
}

func (s *Strategy) Transform(ctx context.Context, env session.Env, in session.Artifact) (session.Artifact, error) {
	ds, ok := in.Value.(*Dataset)
	if !ok {
		return session.Artifact{}, fmt.Errorf("unexpected artifact %T", in.Value)
	}

	out := &Dataset{Samples: make([]Sample, len(ds.Samples))}
	for i, sample := range ds.Samples {
		if err := ctx.Err(); err != nil {
			return session.Artifact{}, err
		}
		img := sample.Image
		if r := s.cfg.Resize; r != nil {
			img = resize(img, r.Width, r.Height)
		}
		if c := s.cfg.Crop; c != nil {
			cropped, err := crop(img, *c)
			if err != nil {
				return session.Artifact{}, fmt.Errorf("%s: %w", sample.Name, err)
			}
			img = cropped
		}
		out.Samples[i] = Sample{Name: sample.Name, Label: sample.Label, Image: img}
	}
	env.Progress(0.8, "images preprocessed")
	return session.Artifact{Name: "samples", Value: out}, nil
}

func (s *Strategy) Emit(_ context.Context, env session.Env, in session.Artifact, dest session.Destination) (session.ArtifactRef, error) {
	ds, ok := in.Value.(*Dataset)
	if !ok {
		return session.ArtifactRef{}, fmt.Errorf("unexpected artifact %T", in.Value)
	}
	codec := env.Codec()
	data, err := codec.Marshal(ds.Output())
	if err != nil {
		return session.ArtifactRef{}, fmt.Errorf("encode dataset: %w", err)
	}
	path := filepath.Join(dest.Root, "dataset"+wire.Extension(codec))
	size, err := mount.WriteFile(path, data)
	if err != nil {
		return session.ArtifactRef{}, fmt.Errorf("write dataset: %w", err)
	}
	env.Progress(0.99, "dataset written")
	return session.ArtifactRef{Location: path, Codec: codec.Name(), Size: size}, nil
}

var _ session.Strategy = (*Strategy)(nil)
