// Package pipeline 按名称构造会话策略。
package pipeline

import (
	"slices"

	"github.com/samber/lo"

	"github.com/BaSui01/fedflow/pipeline/fedstats"
	"github.com/BaSui01/fedflow/pipeline/imageload"
	"github.com/BaSui01/fedflow/pipeline/mount"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/types"
)

// Factory builds a fresh strategy for one participant.
type Factory func(mounts mount.Mounts) session.Strategy

var factories = map[string]Factory{
	imageload.Name: func(m mount.Mounts) session.Strategy { return imageload.New(m) },
	fedstats.Name:  func(m mount.Mounts) session.Strategy { return fedstats.New(m) },
}

// Names lists the registered strategies, sorted.
func Names() []string {
	names := lo.Keys(factories)
	slices.Sort(names)
	return names
}

// New builds the named strategy.
func New(name string, mounts mount.Mounts) (session.Strategy, error) {
	f, ok := factories[name]
	if !ok {
		return nil, types.Errorf(types.ErrInvalidRequest, "unknown strategy %q, expected one of %v", name, Names())
	}
	return f(mounts), nil
}
