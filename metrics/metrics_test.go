package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snaps []Snapshot
}

func (f fakeSource) Snapshot() []Snapshot { return f.snaps }

func TestCollectorGathersWithoutError(t *testing.T) {
	src := fakeSource{snaps: []Snapshot{
		{
			Labels:     []string{"conn-1"},
			Sent:       map[string]float64{"reliable": 10, "notify": 5},
			Received:   map[string]float64{"reliable": 8},
			Resent:     2,
			Acked:      8,
			RTTSeconds: 0.042,
			LossRate:   0.1,
		},
	}}

	c := NewCollector(src, prometheus.Labels{"instance": "test"})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestCollectorHandlesNoConnections(t *testing.T) {
	src := fakeSource{}
	c := NewCollector(src, nil)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}
