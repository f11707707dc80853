package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermitsCachedUseWithoutConnect(t *testing.T) {
	cases := []struct {
		policy      UpdatePolicy
		revalidated bool
		want        bool
	}{
		{PolicyNever, false, true},
		{PolicyNever, true, true},
		{PolicySession, false, false},
		{PolicySession, true, true},
		{PolicyAlways, true, false},
		{PolicyForce, true, false},
	}
	for _, c := range cases {
		got := c.policy.PermitsCachedUseWithoutConnect(c.revalidated)
		assert.Equal(t, c.want, got, "%s.PermitsCachedUseWithoutConnect(%v)", c.policy, c.revalidated)
	}
}
