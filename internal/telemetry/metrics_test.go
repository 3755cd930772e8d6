package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := CommandsTotal
	Init()
	assert.Same(t, first, CommandsTotal)
}

func TestSetRegistrySize(t *testing.T) {
	Init()
	SetRegistrySize("keywords.txt", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(RegistryEntries.WithLabelValues("keywords.txt")))
}
