package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

type mockS3Client struct {
	lastInput *s3.PutObjectInput
	lastBody  []byte
	err       error
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.lastInput = input
	m.lastBody, _ = io.ReadAll(input.Body)
	return &s3.PutObjectOutput{}, m.err
}

func TestBucketName(t *testing.T) {
	assert.Equal(t, "cvs-atf-reports-develop", BucketName("develop"))
}

func TestUploader_Upload(t *testing.T) {
	mock := &mockS3Client{}
	u, err := NewUploader(BucketName("develop"), WithS3Client(mock))
	require.NoError(t, err)
	assert.Equal(t, "cvs-atf-reports-develop", u.Bucket())

	err = u.Upload(context.Background(), &types.ReportArtifact{
		FileName: "ATFReport_14-01-2019_0847_P1_Dorel.xlsx",
		Content:  []byte("xlsx"),
	})
	require.NoError(t, err)

	require.NotNil(t, mock.lastInput)
	assert.Equal(t, "cvs-atf-reports-develop", *mock.lastInput.Bucket)
	assert.Equal(t, "ATFReport_14-01-2019_0847_P1_Dorel.xlsx", *mock.lastInput.Key)
	assert.Equal(t, xlsxContentType, *mock.lastInput.ContentType)
	assert.Equal(t, []byte("xlsx"), mock.lastBody)
}

func TestUploader_Error(t *testing.T) {
	mock := &mockS3Client{err: errors.New("access denied")}
	u, err := NewUploader("bucket", WithS3Client(mock))
	require.NoError(t, err)

	err = u.Upload(context.Background(), &types.ReportArtifact{FileName: "r.xlsx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestUploader_Validation(t *testing.T) {
	_, err := NewUploader("")
	assert.ErrorContains(t, err, "bucket name required")
	_, err = NewUploader(BucketName(""))
	assert.ErrorContains(t, err, "bucket name required")

	u, err := NewUploader("bucket", WithS3Client(&mockS3Client{}))
	require.NoError(t, err)
	assert.Error(t, u.Upload(context.Background(), nil))
	assert.Error(t, u.Upload(context.Background(), &types.ReportArtifact{}))
}
