package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
)

type s3Mock struct {
	mock.Mock
}

func (m *s3Mock) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func newTestStore(t *testing.T) (*S3Store, *s3Mock, context.Context) {
	t.Helper()
	client := new(s3Mock)
	store := &S3Store{
		client:    client,
		bucket:    "media-test",
		publicURL: "https://media.example.com",
	}
	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))
	return store, client, ctx
}

func TestInboundKey_Layout(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	key := inboundKey("org-1", "contact-9", "photo.jpg", now)
	assert.Equal(t, "org-1/customer/received/contact-9/2024-05-01/photo.jpg", key)
}

func TestInboundKey_SanitizesFilename(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filename string
		expected string
	}{
		{"Forward Slashes Replaced", "../../etc/passwd", "org-1/customer/received/contact-9/2024-05-01/.._.._etc_passwd"},
		{"Backslashes Replaced", `a\b.pdf`, "org-1/customer/received/contact-9/2024-05-01/a_b.pdf"},
		{"Empty Falls Back", "", "org-1/customer/received/contact-9/2024-05-01/attachment"},
		{"Dot Falls Back", ".", "org-1/customer/received/contact-9/2024-05-01/attachment"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, inboundKey("org-1", "contact-9", tc.filename, now))
		})
	}
}

func TestStoreInbound_UploadsAndReturnsPublicURL(t *testing.T) {
	store, client, ctx := newTestStore(t)
	data := []byte{0xFF, 0xD8, 0xFF}

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Bucket == "media-test" &&
			input.ContentType != nil && *input.ContentType == "image/jpeg"
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	url, err := store.StoreInbound(ctx, "org-1", "contact-9", "photo.jpg", data, "image/jpeg")
	assert.NoError(t, err)
	assert.Contains(t, url, "https://media.example.com/org-1/customer/received/contact-9/")
	assert.Contains(t, url, "/photo.jpg")
	client.AssertExpectations(t)
}

func TestStoreInbound_OmitsEmptyContentType(t *testing.T) {
	store, client, ctx := newTestStore(t)

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return input.ContentType == nil
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	_, err := store.StoreInbound(ctx, "org-1", "contact-9", "blob.bin", []byte{0x01}, "")
	assert.NoError(t, err)
	client.AssertExpectations(t)
}

func TestStoreInbound_UploadError(t *testing.T) {
	store, client, ctx := newTestStore(t)

	client.On("PutObject", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset")).Once()

	url, err := store.StoreInbound(ctx, "org-1", "contact-9", "photo.jpg", []byte{0x01}, "image/jpeg")
	assert.Error(t, err)
	assert.Empty(t, url)
}
