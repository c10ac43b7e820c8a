package onchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainByID_ReturnsBaseForKnownChain(t *testing.T) {
	c, ok := ChainByID(8453)
	assert.True(t, ok)
	assert.Equal(t, "base", c.Name)
	assert.NotEqual(t, (ChainInfo{}).WETH, c.WETH)
}

func TestChainByID_UnknownChainReportsFalse(t *testing.T) {
	_, ok := ChainByID(1)
	assert.False(t, ok)
}
