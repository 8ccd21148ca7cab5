package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 6, 5, 23, 30, 0, 0, time.FixedZone("ART", -3*3600))
	cfg := &Config{Prefix: "webhooks"}
	assert.Equal(t, "webhooks/mercadopago/2024/06/06/mp-123.json", cfg.ObjectKey("mercadopago", "mp-123", at))
	assert.Equal(t, "dlocal/2024/06/06/a_b_c.json", (&Config{}).ObjectKey("dlocal", "a/b c", at))
	assert.Equal(t, "midtrans/2024/06/06/unknown.json", (&Config{}).ObjectKey("midtrans", "", at))
}

func TestClientArchive(t *testing.T) {
	t.Parallel()

	put := &fakePutter{}
	c := &Client{s3Client: put, config: &Config{BucketName: "club-archive", Prefix: "webhooks"}}
	payload := []byte(`{"providerPaymentId":"mp-1"}`)

	require.NoError(t, c.Archive(context.Background(), "mercadopago", "mp-1", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), payload))
	assert.Equal(t, "club-archive", aws.ToString(put.input.Bucket))
	assert.Equal(t, "webhooks/mercadopago/2024/06/15/mp-1.json", aws.ToString(put.input.Key))
	assert.Equal(t, payload, put.body)

	put.err = errors.New("denied")
	assert.Error(t, c.Archive(context.Background(), "mercadopago", "mp-1", time.Now(), payload))
}

func TestLoadConfigRequiresBucketWhenEnabled(t *testing.T) {
	t.Setenv("WEBHOOK_ARCHIVE_ENABLED", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_BUCKET_NAME", "")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("S3_BUCKET_NAME", "bucket")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "webhooks", cfg.Prefix)
}
