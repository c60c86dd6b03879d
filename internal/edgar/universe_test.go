package edgar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const universeBody = `{"fields":["cik","seriesId","classId","symbol"],"data":[
 [1064642,"S000006408","C000017609","SPY"],
 [36405,"S000002839","C000007773","VFINX"],
 [36405,"S000002839","C000092055","VOO"],
 [36405,"S000002839","C000092055","VOO"],
 [884394,"S000004310","C000012059","QQQ"],
 [0,"S000000001","C000000001","BAD"],
 [1100663,"S000010000",null,"IVV"]
]}`

func TestUniverse(t *testing.T) {
	u := newTestUpstream(t)
	c := u.client(t)

	funds, err := c.Universe(context.Background(), true)
	require.NoError(t, err)

	var classes []string
	for _, f := range funds {
		classes = append(classes, f.ClassID)
		assert.True(t, f.IsActive)
		assert.Len(t, f.CIK, 10)
	}
	assert.Equal(t, []string{"C000092055", "C000012059", "C000017609"}, classes)
	assert.Equal(t, "0000036405", funds[0].CIK)
	assert.Equal(t, "VOO", funds[0].Ticker)

	all, err := c.Universe(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, all, 4, "5-char tickers kept when not filtering ETFs")
}

func TestUniverse_MissingField(t *testing.T) {
	tf := &tickerFile{Fields: []string{"cik", "symbol"}}
	_, err := tf.funds(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing field "seriesId"`)
}

func TestUniverse_NotConfigured(t *testing.T) {
	c := NewClient(nil, Options{})
	_, err := c.Universe(context.Background(), true)
	require.Error(t, err)
}
