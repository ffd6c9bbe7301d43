package pdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBalanceOpsRepairsMissingPops(t *testing.T) {
	content := "q 0 g q 1 0 0 1 5 5 cm Q BT [<41>] TJ ET "
	out := BalanceOps(content)

	assert.True(t, strings.HasSuffix(out, "Q ET "),
		"the compensating pop lands before the trailing end of text")
	pushes, pops := 0, 0
	for _, tok := range strings.Fields(out) {
		if tok == "q" {
			pushes++
		}
		if tok == "Q" {
			pops++
		}
	}
	assert.Equal(t, pushes, pops)
}

func TestBalanceOpsLeavesBalancedContent(t *testing.T) {
	content := "q 0 g Q BT ET "
	assert.Equal(t, content, BalanceOps(content))
}

func TestBalanceOpsNeverAddsPushes(t *testing.T) {
	content := "0 g Q Q BT ET "
	assert.Equal(t, content, BalanceOps(content))
}

func TestBalanceOpsWithoutTrailingTextMarker(t *testing.T) {
	out := BalanceOps("q q Q 0 g ")
	assert.Equal(t, "q q Q 0 g Q ", out)
}

func TestComposePage(t *testing.T) {
	out := ComposePage("0.5 w 10 10 m 20 20 l S ", "BT [<41>] TJ ET ", 5, 12.5)

	assert.Equal(t, "q 0.5 w 10 10 m 20 20 l S Q 1 0 0 1 5 12.5 cm BT [<41>] TJ ET ", out)
}

func TestComposePageRepairsUnbalancedBase(t *testing.T) {
	// the source stream pushed twice and popped once; the composed page
	// must still close every save
	out := ComposePage("q q Q 0 g ", "BT ET ", 0, 0)

	pushes := 0
	pops := 0
	for _, tok := range strings.Fields(out) {
		if tok == "q" {
			pushes++
		}
		if tok == "Q" {
			pops++
		}
	}
	assert.Equal(t, pushes, pops)
	assert.True(t, strings.HasSuffix(out, "ET "))
}
