package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/fedflow/config"
	"github.com/BaSui01/fedflow/pipeline/fedstats"
	"github.com/BaSui01/fedflow/pipeline/imageload"
	"github.com/BaSui01/fedflow/pipeline/mount"
	"github.com/BaSui01/fedflow/types"
)

func TestNew(t *testing.T) {
	s, err := New(imageload.Name, mount.Default())
	require.NoError(t, err)
	assert.IsType(t, &imageload.Strategy{}, s)

	s, err = New(fedstats.Name, mount.Default())
	require.NoError(t, err)
	assert.IsType(t, &fedstats.Strategy{}, s)

	_, err = New("nope", mount.Default())
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}

func TestNamesMatchConfig(t *testing.T) {
	assert.ElementsMatch(t, config.KnownStrategies, Names())
}
