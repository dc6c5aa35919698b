package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

type mockLambdaClient struct {
	lastInput *awslambda.InvokeInput
	calls     int
	out       *awslambda.InvokeOutput
	err       error
}

func (m *mockLambdaClient) Invoke(_ context.Context, input *awslambda.InvokeInput, _ ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error) {
	m.lastInput = input
	m.calls++
	return m.out, m.err
}

func output(status int32, payload string) *awslambda.InvokeOutput {
	return &awslambda.InvokeOutput{StatusCode: status, Payload: []byte(payload)}
}

func TestValidateResponse_404BecomesEmpty200(t *testing.T) {
	resp, err := ValidateResponse("fn", output(200, `{"statusCode": 404, "body": "No resource match the selected criteria"}`))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "[]", resp.Body)
}

func TestValidateResponse_HighInnerStatus(t *testing.T) {
	_, err := ValidateResponse("fn", output(200, `{"statusCode": 503, "body": "Service unavailable"}`))
	require.Error(t, err)
	assert.Equal(t, "Lambda invocation returned error: 503 Service unavailable", err.Error())
	assert.ErrorIs(t, err, types.ErrRemoteLookupFailed)

	var rle *RemoteLookupError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 503, rle.StatusCode)
	assert.Equal(t, "Service unavailable", rle.Body)
}

func TestValidateResponse_HighOuterStatusNoPayload(t *testing.T) {
	_, err := ValidateResponse("fn", &awslambda.InvokeOutput{StatusCode: 418})
	require.Error(t, err)
	assert.Equal(t, "Lambda invocation returned error: 418 with empty payload.", err.Error())
	assert.ErrorIs(t, err, types.ErrRemoteLookupFailed)
}

func TestValidateResponse_MissingBody(t *testing.T) {
	_, err := ValidateResponse("fn", output(200, `{}`))
	require.Error(t, err)
	assert.Equal(t, "Lambda invocation returned bad data: {}.", err.Error())
}

func TestValidateResponse_MalformedPayload(t *testing.T) {
	_, err := ValidateResponse("fn", output(200, `not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRemoteLookupFailed)
	assert.Contains(t, err.Error(), "bad data")
}

func TestValidateResponse_FunctionError(t *testing.T) {
	out := output(200, `{"errorMessage":"boom"}`)
	out.FunctionError = aws.String("Unhandled")
	_, err := ValidateResponse("fn", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unhandled")
}

func TestValidateResponse_Good(t *testing.T) {
	resp, err := ValidateResponse("fn", output(200, `{"statusCode": 200, "body": "It worked"}`))
	require.NoError(t, err)
	assert.Equal(t, &Response{StatusCode: 200, Body: "It worked"}, resp)
}

func TestValidateResponse_InlineJSONBody(t *testing.T) {
	resp, err := ValidateResponse("fn", output(200, `{"statusCode": 200, "body": [{"a":1}]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1}]`, resp.Body)
}

func TestInvoke_SendsProxyEnvelope(t *testing.T) {
	mock := &mockLambdaClient{out: output(200, `{"statusCode":200,"body":"[]"}`)}
	inv := New(mock, []string{"cvs-svc-test-results"})

	resp, err := inv.Invoke(context.Background(), "cvs-svc-test-results", Request{
		HTTPMethod:            "GET",
		Path:                  "/test-results/getTestResultsByTesterStaffId",
		QueryStringParameters: map[string]string{"testerStaffId": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Body)

	require.NotNil(t, mock.lastInput)
	assert.Equal(t, "cvs-svc-test-results", *mock.lastInput.FunctionName)
	assert.Equal(t, "RequestResponse", string(mock.lastInput.InvocationType))

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(mock.lastInput.Payload, &sent))
	assert.Equal(t, "GET", sent["httpMethod"])
	assert.Equal(t, "/test-results/getTestResultsByTesterStaffId", sent["path"])
	assert.Equal(t, map[string]interface{}{"testerStaffId": "1"}, sent["queryStringParameters"])
}

func TestInvoke_TransportErrorBubblesUp(t *testing.T) {
	mock := &mockLambdaClient{err: errors.New("Oh no")}
	inv := New(mock, []string{"bob"})

	_, err := inv.Invoke(context.Background(), "bob", Request{HTTPMethod: "GET", Path: "/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRemoteLookupFailed)
	assert.Contains(t, err.Error(), "Oh no")
}

func TestInvoke_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mock := &mockLambdaClient{err: errors.New("throttled")}
	inv := New(mock, []string{"fn"}, WithBreakerSettings(BreakerSettings{
		FailThreshold: 2,
		Cooldown:      time.Minute,
		FailWindow:    time.Minute,
	}))

	for i := 0; i < 2; i++ {
		_, err := inv.Invoke(context.Background(), "fn", Request{})
		require.Error(t, err)
	}
	assert.Equal(t, 2, mock.calls)

	_, err := inv.Invoke(context.Background(), "fn", Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, 2, mock.calls, "open circuit must not reach the client")
}

func TestInvoke_UnknownFunctionSkipsBreaker(t *testing.T) {
	mock := &mockLambdaClient{out: output(200, `{"statusCode":200,"body":"ok"}`)}
	inv := New(mock, nil)

	resp, err := inv.Invoke(context.Background(), "other", Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Body)
}
