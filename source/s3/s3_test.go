package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "esco-optimizer/pkg/errors"
	"esco-optimizer/source"
)

type fakeObjects struct {
	objects map[string]string
	gotKey  string
}

func (f *fakeObjects) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.gotKey = aws.ToString(in.Key)
	body, ok := f.objects[f.gotKey]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeObjects) HeadBucket(context.Context, *awss3.HeadBucketInput, ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	return &awss3.HeadBucketOutput{}, nil
}

func TestFetch(t *testing.T) {
	fake := &fakeObjects{objects: map[string]string{
		"offers/10001.json": `[{"DISPLAY_NAME":"Acme","RATE":0.1}]`,
	}}
	cfg := DefaultConfig()
	cfg.Bucket = "esco"
	cfg.Prefix = "/offers/"
	s := NewWithClient(cfg, fake)

	offers, err := s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	require.NoError(t, err)
	assert.Equal(t, "offers/10001.json", fake.gotKey)
	require.Len(t, offers, 1)
	assert.Equal(t, "Acme", offers[0].DisplayName)

	require.NoError(t, s.Ping(context.Background()))
}

func TestFetch_MissingObject(t *testing.T) {
	s := NewWithClient(Config{Bucket: "esco", Prefix: "offers"}, &fakeObjects{})
	_, err := s.Fetch(context.Background(), source.Query{ZipCode: "10001"})
	assert.True(t, errors.Is(err, apperrors.ErrSourceFailed))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
