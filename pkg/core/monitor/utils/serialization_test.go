package utils

import (
	"DoublerNet/pkg/network"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotEncoding(t *testing.T) {
	snapshot := WeightSnapshot{
		Hyperparameters: network.DefaultHyperparameters(),
		Weights:         []float64{0.25, 0.5, 0.75},
	}

	data, err := EncodeSnapshot(snapshot)
	require.NoError(t, err)

	raw, err := DecodeFromBase64(EncodeToBase64(data))
	require.NoError(t, err)
	got, err := DecodeSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)

	_, err = DecodeSnapshot([]byte("not gob"))
	assert.Error(t, err)
	_, err = DecodeFromBase64("%%%")
	assert.Error(t, err)
}
