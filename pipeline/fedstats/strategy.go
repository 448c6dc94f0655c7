package fedstats

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/pipeline/mount"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/wire"
)

// Name is the strategy name used in configuration.
const Name = "fedstats"

// StepNormalize is the transform that centers values on the global mean.
const StepNormalize = "normalize"

// Column is the artifact carried between phases.
type Column struct {
	Values []float64 `json:"values"`
	Local  Stats     `json:"local"`
	Global *Stats    `json:"global,omitempty"`
}

// Output is what Emit writes.
type Output struct {
	Participant string    `json:"participant"`
	Role        string    `json:"role"`
	Local       Summary   `json:"local"`
	Global      *Summary  `json:"global,omitempty"`
	Centered    []float64 `json:"centered,omitempty"`
}

// Strategy computes federated column statistics.
type Strategy struct {
	mounts mount.Mounts
	cfg    *Config
	sent   bool
}

// New creates the strategy reading its config from mounts.Input.
func New(mounts mount.Mounts) *Strategy {
	return &Strategy{mounts: mounts}
}

func (s *Strategy) Configure(_ context.Context, env session.Env) (session.Plan, error) {
	cfg, err := LoadConfig(s.mounts.ConfigPath())
	if err != nil {
		return session.Plan{}, err
	}
	if err := mount.CopyInto(s.mounts.ConfigPath(), s.mounts.Output); err != nil {
		return session.Plan{}, fmt.Errorf("copy config: %w", err)
	}
	s.cfg = cfg
	env.Logger().Info("fedstats configured",
		zap.String("file", cfg.File),
		zap.Int("column", cfg.Column),
		zap.Bool("normalize", cfg.Normalize))
	return session.Plan{Transforms: []session.Transform{{Name: StepNormalize, Enabled: cfg.Normalize}}}, nil
}

func (s *Strategy) Ingest(_ context.Context, env session.Env, in session.Dataset) (session.Artifact, error) {
	values, err := readColumn(filepath.Join(in.Root, s.cfg.File), s.cfg.Column, s.cfg.Sep)
	if err != nil {
		return session.Artifact{}, fmt.Errorf("read column: %w", err)
	}
	col := &Column{Values: values, Local: Compute(values)}
	env.Logger().Info("local stats",
		zap.Int("count", col.Local.Count),
		zap.Float64("mean", col.Local.Mean()))
	env.Progress(0.3, "local statistics computed")
	return session.Artifact{Name: "column", Value: col}, nil
}

func (s *Strategy) Transform(_ context.Context, env session.Env, in session.Artifact) (session.Artifact, error) {
	col, ok := in.Value.(*Column)
	if !ok {
		return session.Artifact{}, fmt.Errorf("unexpected artifact %T", in.Value)
	}

	var (
		global Stats
		err    error
	)
	if env.Identity().Coordinator {
		global, err = s.aggregate(env, col.Local)
	} else {
		global, err = s.exchange(env, col.Local)
	}
	if err != nil {
		return session.Artifact{}, err
	}

	mean := global.Mean()
	out := &Column{
		Values: lo.Map(col.Values, func(v float64, _ int) float64 { return v - mean }),
		Local:  col.Local,
		Global: &global,
	}
	env.Progress(0.8, "values centered")
	return session.Artifact{Name: "column", Value: out}, nil
}

// aggregate waits for every client, merges their stats with the local ones
// and broadcasts the result.
func (s *Strategy) aggregate(env session.Env, local Stats) (Stats, error) {
	gathered, err := env.GatherFromClients()
	if err != nil {
		return Stats{}, err
	}
	clients := env.Identity().Clients()
	if gathered.Len() != len(clients) {
		env.Progress(0.4, "waiting for client statistics")
		return Stats{}, session.ErrNotReady
	}

	global := local
	for body, i := range gathered.All() {
		var st Stats
		if err := body.Decode(&st); err != nil {
			return Stats{}, fmt.Errorf("stats from %s: %w", clients[i], err)
		}
		global = global.Merge(st)
	}
	if err := env.Broadcast(global); err != nil {
		return Stats{}, err
	}
	env.Logger().Info("global stats broadcast",
		zap.Int("clients", len(clients)),
		zap.Int("count", global.Count),
		zap.Float64("mean", global.Mean()))
	return global, nil
}

// exchange sends the local stats once and waits for the global ones.
func (s *Strategy) exchange(env session.Env, local Stats) (Stats, error) {
	if !s.sent {
		if err := env.SendToCoordinator(local); err != nil {
			return Stats{}, err
		}
		s.sent = true
	}
	body, ok, err := env.AwaitBroadcast()
	if err != nil {
		return Stats{}, err
	}
	if !ok {
		env.Progress(0.5, "waiting for global statistics")
		return Stats{}, session.ErrNotReady
	}
	var global Stats
	if err := body.Decode(&global); err != nil {
		return Stats{}, fmt.Errorf("global stats: %w", err)
	}
	return global, nil
}

func (s *Strategy) Emit(_ context.Context, env session.Env, in session.Artifact, dest session.Destination) (session.ArtifactRef, error) {
	col, ok := in.Value.(*Column)
	if !ok {
		return session.ArtifactRef{}, fmt.Errorf("unexpected artifact %T", in.Value)
	}
	id := env.Identity()
	out := Output{Participant: id.ID, Role: id.Role(), Local: col.Local.Summary()}
	if col.Global != nil {
		g := col.Global.Summary()
		out.Global = &g
		out.Centered = col.Values
	}

	codec := env.Codec()
	data, err := codec.Marshal(out)
	if err != nil {
		return session.ArtifactRef{}, fmt.Errorf("encode stats: %w", err)
	}
	path := filepath.Join(dest.Root, "stats"+wire.Extension(codec))
	size, err := mount.WriteFile(path, data)
	if err != nil {
		return session.ArtifactRef{}, fmt.Errorf("write stats: %w", err)
	}
	return session.ArtifactRef{Location: path, Codec: codec.Name(), Size: size}, nil
}

var _ session.Strategy = (*Strategy)(nil)
