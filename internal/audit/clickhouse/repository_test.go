package clickhouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoolToUint8(t *testing.T) {
	assert.Equal(t, uint8(1), boolToUint8(true))
	assert.Equal(t, uint8(0), boolToUint8(false))
}
