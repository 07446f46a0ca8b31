package cache

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinfolio-engine/pkg/models"
)

func TestSupersedes(t *testing.T) {
	snapshot := func(version int64) []byte {
		raw, err := json.Marshal(models.Coin{CoinID: "c1", Version: version})
		require.NoError(t, err)
		return raw
	}

	tests := []struct {
		name    string
		version int64
		cached  []byte
		want    bool
	}{
		{"empty cache", 1, nil, true},
		{"newer version", 5, snapshot(4), true},
		{"same version", 4, snapshot(4), false},
		{"stale read-through", 3, snapshot(4), false},
		{"unreadable snapshot", 1, []byte("{not json"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := supersedes(models.Coin{CoinID: "c1", Version: tt.version}, tt.cached)
			assert.Equal(t, tt.want, got)
		})
	}
}
