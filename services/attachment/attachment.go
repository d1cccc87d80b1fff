package attachmentsvc

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/internly/internly/core"
	"github.com/internly/internly/core/review"
)

var nowFunc = time.Now // mockable

// cleanRef normalises an attachment reference into an object key.
func cleanRef(ref string) (string, error) {
	key := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(ref)), "/")
	if key == "" || key == "." || strings.Contains(ref, "..") {
		return "", core.NewValidationError(
			review.ErrValidationFailed,
			core.FieldError{Field: "attachments", Error: "invalid attachment reference " + ref},
		)
	}
	return key, nil
}

// StaticResolver serves attachments from a fixed base URL (local media directory or CDN).
type StaticResolver struct {
	base *url.URL
}

var _ review.AttachmentResolver = (*StaticResolver)(nil)

func NewStaticResolver(baseURL string) (*StaticResolver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing attachments base URL")
	}
	return &StaticResolver{base: u}, nil
}

func (r *StaticResolver) Resolve(_ context.Context, ref string) (review.Locator, error) {
	key, err := cleanRef(ref)
	if err != nil {
		return review.Locator{}, err
	}
	return review.Locator{Ref: ref, URL: r.base.JoinPath(key).String()}, nil
}

// S3Resolver hands out presigned, expiring GET URLs for objects in a bucket.
type S3Resolver struct {
	client s3iface.S3API
	bucket string
	ttl    time.Duration
}

var _ review.AttachmentResolver = (*S3Resolver)(nil)

func NewS3Resolver(client s3iface.S3API, bucket string, ttl time.Duration) *S3Resolver {
	return &S3Resolver{client: client, bucket: bucket, ttl: ttl}
}

func (r *S3Resolver) Resolve(ctx context.Context, ref string) (review.Locator, error) {
	key, err := cleanRef(ref)
	if err != nil {
		return review.Locator{}, err
	}
	req, _ := r.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)
	signed, err := req.Presign(r.ttl)
	if err != nil {
		return review.Locator{}, errors.Wrapf(err, "presigning %s", key)
	}
	expires := nowFunc().UTC().Add(r.ttl)
	return review.Locator{Ref: ref, URL: signed, ExpiresAt: &expires}, nil
}

// New returns the resolver selected by conf.Attachments.Driver.
func New(conf *core.Config) (review.AttachmentResolver, error) {
	switch conf.Attachments.Driver {
	case "s3":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(conf.Attachments.S3Region)})
		if err != nil {
			return nil, errors.Wrap(err, "creating AWS session")
		}
		return NewS3Resolver(s3.New(sess), conf.Attachments.S3Bucket, conf.Attachments.PresignTTL), nil
	default:
		return NewStaticResolver(conf.Attachments.BaseURL)
	}
}
