package s3driver

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
)

// PresignGetOptions override response headers baked into a presigned GET URL.
type PresignGetOptions struct {
	// Disposition is the Content-Disposition the service should answer
	// with ("inline" or an attachment with a filename).
	Disposition string

	// ContentType overrides the stored Content-Type in the response.
	ContentType string
}

// PresignGet returns a time-limited GET URL for key.
func (d *Driver) PresignGet(ctx context.Context, key string, expires time.Duration, opts PresignGetOptions) (string, error) {
	if err := d.requireCapability(CapPresign, "presign"); err != nil {
		return "", err
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}
	if opts.Disposition != "" {
		in.ResponseContentDisposition = aws.String(opts.Disposition)
	}
	if opts.ContentType != "" {
		in.ResponseContentType = aws.String(opts.ContentType)
	}

	req, err := d.presigner.PresignGetObject(ctx, in, s3.WithPresignExpires(expires))
	if err != nil {
		return "", &gwerrors.GatewayError{Code: gwerrors.ErrUpstreamUnavailable, Message: "presign failed", Path: key, Err: err}
	}
	return req.URL, nil
}

// PresignPut returns a time-limited PUT URL for key. The client must send the
// same Content-Type the URL was signed with.
func (d *Driver) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	if err := d.requireCapability(CapPresign, "presign"); err != nil {
		return "", err
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := d.presigner.PresignPutObject(ctx, in, s3.WithPresignExpires(expires))
	if err != nil {
		return "", &gwerrors.GatewayError{Code: gwerrors.ErrUpstreamUnavailable, Message: "presign failed", Path: key, Err: err}
	}
	return req.URL, nil
}
