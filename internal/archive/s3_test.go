package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	if params.Body != nil {
		f.body, _ = io.ReadAll(params.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)
}

func TestS3Archive_Store(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3Archive(putter, "catalog-uploads", "/uploads/")
	a.now = fixedNow

	uploadID := uuid.MustParse("7f1c6c2e-8a8e-4d7b-9a55-0f4a9d1e2b3c")
	key, err := a.Store(context.Background(), uploadID, "products.csv", []byte("sku,name\n"))
	require.NoError(t, err)

	assert.Equal(t, "uploads/2026/10/16/7f1c6c2e-8a8e-4d7b-9a55-0f4a9d1e2b3c-products.csv", key)
	require.NotNil(t, putter.input)
	assert.Equal(t, "catalog-uploads", aws.ToString(putter.input.Bucket))
	assert.Equal(t, key, aws.ToString(putter.input.Key))
	assert.Equal(t, "text/csv", aws.ToString(putter.input.ContentType))
	assert.Equal(t, "products.csv", putter.input.Metadata["original-filename"])
	assert.Equal(t, []byte("sku,name\n"), putter.body)
}

func TestS3Archive_KeyUsesBaseName(t *testing.T) {
	a := NewS3Archive(&fakePutter{}, "b", "")
	a.now = fixedNow
	uploadID := uuid.MustParse("7f1c6c2e-8a8e-4d7b-9a55-0f4a9d1e2b3c")

	assert.Equal(t, "2026/10/16/7f1c6c2e-8a8e-4d7b-9a55-0f4a9d1e2b3c-p.csv", a.key(uploadID, `C:\exports\p.csv`))
	assert.Equal(t, "2026/10/16/7f1c6c2e-8a8e-4d7b-9a55-0f4a9d1e2b3c-p.csv", a.key(uploadID, "../../p.csv"))
	assert.Equal(t, "2026/10/16/7f1c6c2e-8a8e-4d7b-9a55-0f4a9d1e2b3c-upload.csv", a.key(uploadID, ""))
}

func TestS3Archive_StoreError(t *testing.T) {
	a := NewS3Archive(&fakePutter{err: errors.New("AccessDenied")}, "b", "uploads")

	_, err := a.Store(context.Background(), uuid.New(), "products.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}
