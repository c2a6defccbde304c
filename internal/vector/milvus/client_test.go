package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexConstruction(t *testing.T) {
	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	require.NoError(t, err)
	require.NotNil(t, idx)
	assert.Equal(t, entity.IvfFlat, idx.IndexType())
}

func TestSearchParamConstruction(t *testing.T) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	require.NoError(t, err)
	require.NotNil(t, sp)

	// nprobe outside [1, 65536] is rejected by the SDK.
	_, err = entity.NewIndexIvfFlatSearchParam(0)
	assert.Error(t, err)
}
