package wirepeer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyRequest(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0","method":"PING","params":[1,2],"id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, kindRequest, d.kind)
	assert.Equal(t, "abc", d.id)
	assert.Equal(t, "PING", d.method)
}

func TestClassifyNotification(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0","method":"TERM","params":{"reason":"bye"}}`))
	require.NoError(t, err)
	assert.Equal(t, kindNotification, d.kind)
}

func TestClassifyResponseResult(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0","id":"abc","result":42}`))
	require.NoError(t, err)
	assert.Equal(t, kindResponse, d.kind)
	assert.Equal(t, "abc", d.id)
	assert.Nil(t, d.rpcErr)
}

func TestClassifyResponseError(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0","id":"abc","error":{"code":-32601,"message":"nope"}}`))
	require.NoError(t, err)
	assert.Equal(t, kindResponse, d.kind)
	require.NotNil(t, d.rpcErr)
	assert.Equal(t, -32601, d.rpcErr.Code)
}

func TestClassifyBothResultAndErrorIsInvalid(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0","id":"abc","result":1,"error":{"code":1,"message":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, kindInvalid, d.kind)
}

func TestClassifyNonStringMethodIsInvalid(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0","method":7,"id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, kindInvalid, d.kind)
}

func TestClassifyNonStringIDOnRequestIsInvalid(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0","method":"PING","id":7}`))
	require.NoError(t, err)
	assert.Equal(t, kindInvalid, d.kind)
}

func TestClassifyGarbageIsInvalid(t *testing.T) {
	d, err := classify([]byte(`{"jsonrpc":"2.0"}`))
	require.NoError(t, err)
	assert.Equal(t, kindInvalid, d.kind)
}

func TestClassifyMalformedJSONReturnsError(t *testing.T) {
	_, err := classify([]byte(`not json at all`))
	assert.Error(t, err)
}

func TestOutboundRoundTrip(t *testing.T) {
	frame, err := outboundRequest("1", "PING", []int{1, 2, 3})
	require.NoError(t, err)
	d, err := classify(frame)
	require.NoError(t, err)
	assert.Equal(t, kindRequest, d.kind)
	assert.Equal(t, "1", d.id)
	assert.Equal(t, "PING", d.method)
	assert.JSONEq(t, `[1,2,3]`, string(d.params))
}

func TestOutboundErrorRoundTrip(t *testing.T) {
	frame, err := outboundError("9", NewRPCError(CodeMethodNotFound, "nope"))
	require.NoError(t, err)
	d, err := classify(frame)
	require.NoError(t, err)
	assert.Equal(t, kindResponse, d.kind)
	require.NotNil(t, d.rpcErr)
	assert.Equal(t, CodeMethodNotFound, d.rpcErr.Code)
}
