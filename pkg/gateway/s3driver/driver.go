// Package s3driver wraps one S3-compatible endpoint behind a capability-scoped
// driver. Provider differences (AWS, R2, B2, generic) are handled as
// configuration-level tuning; the interface is identical for every provider.
package s3driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/gatefs/gatefs/internal/logger"
	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
	"github.com/gatefs/gatefs/pkg/gateway/models"
)

// DirectoryContentType marks zero-length objects that represent directories.
const DirectoryContentType = "application/x-directory"

// MinPartSize is the S3 minimum size for non-final multipart parts.
const MinPartSize = 5 * 1024 * 1024

// ObjectInfo describes one object (or directory marker).
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	ContentRange string
	IsDirectory  bool
}

// ListResult is one page of a delimited listing.
type ListResult struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
	Truncated      bool
	NextToken      string
}

// CompletedPart pairs a part number with the etag S3 returned for it.
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// Driver is a capability-scoped wrapper over one bucket of one S3-compatible
// endpoint.
type Driver struct {
	client    S3API
	presigner PresignAPI
	bucket    string
	provider  models.ProviderType
	profile   providerProfile
	caps      CapabilitySet
	observer  Observer
}

// Observer receives per-operation timings. Implementations must tolerate a
// nil receiver so the hook can stay unconditional.
type Observer interface {
	ObserveOperation(operation string, duration time.Duration, err error)
}

// SetObserver attaches an operation observer.
func (d *Driver) SetObserver(o Observer) {
	d.observer = o
}

func (d *Driver) observe(op string, start time.Time, err error) {
	if d.observer != nil {
		d.observer.ObserveOperation(op, time.Since(start), err)
	}
}

// expBackoff implements the driver retry policy: base x 2^(attempt-1),
// capped at retryMaxBackoff.
type expBackoff struct{}

func (expBackoff) BackoffDelay(attempt int, _ error) (time.Duration, error) {
	d := retryBaseBackoff << (attempt - 1)
	if d > retryMaxBackoff {
		d = retryMaxBackoff
	}
	return d, nil
}

// New creates a driver from a storage config and its decrypted credentials.
func New(ctx context.Context, cfg *models.StorageConfig, accessKeyID, secretAccessKey string) (*Driver, error) {
	profile := profileFor(cfg.Provider())

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(regionOrDefault(cfg.Region)),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: profile.RequestTimeout}),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = profile.MaxAttempts
				o.Backoff = expBackoff{}
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if profile.RelaxedChecksums {
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	return &Driver{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		provider:  cfg.Provider(),
		profile:   profile,
		caps:      AllCapabilities,
	}, nil
}

// NewWithClient creates a driver over an existing client, for tests.
func NewWithClient(client S3API, presigner PresignAPI, bucket string, caps CapabilitySet) *Driver {
	return &Driver{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		provider:  models.ProviderGeneric,
		profile:   profileFor(models.ProviderGeneric),
		caps:      caps,
	}
}

func regionOrDefault(region string) string {
	if region == "" {
		return "us-east-1"
	}
	return region
}

// Bucket returns the bucket this driver targets.
func (d *Driver) Bucket() string {
	return d.bucket
}

// HasCapability reports whether the driver supports the given capability.
func (d *Driver) HasCapability(c Capability) bool {
	return d.caps.Has(c)
}

func (d *Driver) requireCapability(c Capability, op string) error {
	if !d.caps.Has(c) {
		return gwerrors.New(gwerrors.ErrUnsupported, op+" not supported by storage driver")
	}
	return nil
}

// Stat returns metadata for an object key. Services that reject HeadObject
// with 403 or 405 are probed again with a zero-length ranged GetObject.
func (d *Driver) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := d.requireCapability(CapRead, "stat"); err != nil {
		return nil, err
	}

	start := time.Now()
	head, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	d.observe("stat", start, err)
	if err == nil {
		return infoFromHead(key, head), nil
	}

	if status := errorStatus(err); status == http.StatusForbidden || status == http.StatusMethodNotAllowed {
		return d.statViaRangedGet(ctx, key)
	}

	return nil, d.mapError(err, key)
}

func (d *Driver) statViaRangedGet(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Range:  aws.String("bytes=0-0"),
	})
	if err != nil {
		return nil, d.mapError(err, key)
	}
	defer out.Body.Close()

	info := &ObjectInfo{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	info.ETag = strings.Trim(aws.ToString(out.ETag), `"`)
	// Content-Range carries the full object length for ranged responses.
	if cr := aws.ToString(out.ContentRange); cr != "" {
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			fmt.Sscanf(cr[idx+1:], "%d", &info.Size)
		}
	}
	info.IsDirectory = info.ContentType == DirectoryContentType
	if info.IsDirectory {
		info.Size = 0
	}
	return info, nil
}

func infoFromHead(key string, head *s3.HeadObjectOutput) *ObjectInfo {
	info := &ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(head.ContentLength),
		ETag:        strings.Trim(aws.ToString(head.ETag), `"`),
		ContentType: aws.ToString(head.ContentType),
	}
	if head.LastModified != nil {
		info.LastModified = *head.LastModified
	}
	info.IsDirectory = info.ContentType == DirectoryContentType || strings.HasSuffix(key, "/")
	if info.IsDirectory {
		info.Size = 0
	}
	return info
}

// Open streams an object. rangeHeader is passed through verbatim when
// non-empty ("bytes=0-99").
func (d *Driver) Open(ctx context.Context, key, rangeHeader string) (io.ReadCloser, *ObjectInfo, error) {
	if err := d.requireCapability(CapRead, "get"); err != nil {
		return nil, nil, err
	}

	in := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}
	if rangeHeader != "" {
		in.Range = aws.String(rangeHeader)
	}

	start := time.Now()
	out, err := d.client.GetObject(ctx, in)
	d.observe("get", start, err)
	if err != nil {
		return nil, nil, d.mapError(err, key)
	}

	info := &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		ContentType:  aws.ToString(out.ContentType),
		ContentRange: aws.ToString(out.ContentRange),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return out.Body, info, nil
}

// Put writes an object in a single request and returns its etag.
func (d *Driver) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if err := d.requireCapability(CapWrite, "put"); err != nil {
		return "", err
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	start := time.Now()
	out, err := d.client.PutObject(ctx, in)
	d.observe("put", start, err)
	if err != nil {
		return "", d.mapError(err, key)
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), nil
}

// Delete removes a single object. Deleting a missing key is a no-op, matching
// S3 semantics.
func (d *Driver) Delete(ctx context.Context, key string) error {
	if err := d.requireCapability(CapWrite, "delete"); err != nil {
		return err
	}

	start := time.Now()
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	d.observe("delete", start, err)
	if err != nil {
		return d.mapError(err, key)
	}
	return nil
}

// deleteBatchMax is the S3 DeleteObjects limit per request.
const deleteBatchMax = 1000

// DeleteBatch removes keys in chunks of up to 1000 and returns the keys that
// failed.
func (d *Driver) DeleteBatch(ctx context.Context, keys []string) ([]string, error) {
	if err := d.requireCapability(CapWrite, "delete"); err != nil {
		return keys, err
	}

	var failed []string
	for start := 0; start < len(keys); start += deleteBatchMax {
		end := start + deleteBatchMax
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		objects := make([]types.ObjectIdentifier, 0, len(chunk))
		for _, k := range chunk {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := d.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(d.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			failed = append(failed, chunk...)
			continue
		}
		for _, e := range out.Errors {
			failed = append(failed, aws.ToString(e.Key))
		}
	}

	if len(failed) == len(keys) && len(keys) > 0 {
		return failed, gwerrors.New(gwerrors.ErrUpstreamUnavailable, "batch delete failed for all keys")
	}
	return failed, nil
}

// Copy copies an object within the bucket.
func (d *Driver) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := d.requireCapability(CapCopy, "copy"); err != nil {
		return err
	}

	source := d.bucket + "/" + srcKey
	_, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		return d.mapError(err, srcKey)
	}
	return nil
}

// ListPage returns one page of a delimited listing.
func (d *Driver) ListPage(ctx context.Context, prefix, delimiter, token string, maxKeys int32) (*ListResult, error) {
	if err := d.requireCapability(CapList, "list"); err != nil {
		return nil, err
	}

	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}
	if maxKeys > 0 {
		in.MaxKeys = aws.Int32(maxKeys)
	}

	start := time.Now()
	out, err := d.client.ListObjectsV2(ctx, in)
	d.observe("list", start, err)
	if err != nil {
		return nil, d.mapError(err, prefix)
	}

	result := &ListResult{
		Truncated: aws.ToBool(out.IsTruncated),
		NextToken: aws.ToString(out.NextContinuationToken),
	}
	for _, cp := range out.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	for _, obj := range out.Contents {
		result.Objects = append(result.Objects, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			LastModified: aws.ToTime(obj.LastModified),
			IsDirectory:  strings.HasSuffix(aws.ToString(obj.Key), "/"),
		})
	}
	return result, nil
}

// ListDir consumes every page of a delimited listing of prefix.
func (d *Driver) ListDir(ctx context.Context, prefix string) (*ListResult, error) {
	merged := &ListResult{}
	token := ""
	for {
		page, err := d.ListPage(ctx, prefix, "/", token, 0)
		if err != nil {
			return nil, err
		}
		merged.Objects = append(merged.Objects, page.Objects...)
		merged.CommonPrefixes = append(merged.CommonPrefixes, page.CommonPrefixes...)
		if !page.Truncated {
			return merged, nil
		}
		token = page.NextToken
	}
}

// ListAllKeys walks prefix without a delimiter, calling fn for every object.
// The walk stops early when fn returns false.
func (d *Driver) ListAllKeys(ctx context.Context, prefix string, fn func(ObjectInfo) bool) error {
	token := ""
	for {
		page, err := d.ListPage(ctx, prefix, "", token, 0)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			if !fn(obj) {
				return nil
			}
		}
		if !page.Truncated {
			return nil
		}
		token = page.NextToken
	}
}

// BucketUsage sums object sizes under prefix. Used for capacity enforcement;
// the walk is unbounded in keys but bounded per page by the SDK.
func (d *Driver) BucketUsage(ctx context.Context, prefix string) (int64, error) {
	var total int64
	err := d.ListAllKeys(ctx, prefix, func(obj ObjectInfo) bool {
		total += obj.Size
		return true
	})
	return total, err
}

// CreateMultipart starts a multipart upload and returns its upload ID.
func (d *Driver) CreateMultipart(ctx context.Context, key, contentType string) (string, error) {
	if err := d.requireCapability(CapMultipart, "multipart"); err != nil {
		return "", err
	}

	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	out, err := d.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return "", d.mapError(err, key)
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart uploads one part, retrying transient failures up to
// partMaxAttempts with exponential backoff.
func (d *Driver) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, data []byte) (string, error) {
	if err := d.requireCapability(CapMultipart, "multipart"); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= partMaxAttempts; attempt++ {
		start := time.Now()
		out, err := d.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(d.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(data),
		})
		d.observe("upload_part", start, err)
		if err == nil {
			return strings.Trim(aws.ToString(out.ETag), `"`), nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == partMaxAttempts {
			break
		}

		delay := partBaseBackoff << (attempt - 1)
		logger.Warn("part upload failed, retrying",
			"key", key, "part", partNumber, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}

	return "", d.mapError(fmt.Errorf("upload part %d: %w", partNumber, lastErr), key)
}

// CompleteMultipart commits the upload with the accumulated part list and
// returns the composite etag.
func (d *Driver) CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error) {
	if err := d.requireCapability(CapMultipart, "multipart"); err != nil {
		return "", err
	}

	sorted := make([]CompletedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completed := make([]types.CompletedPart, 0, len(sorted))
	for _, p := range sorted {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}

	start := time.Now()
	out, err := d.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(d.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	d.observe("complete_multipart", start, err)
	if err != nil {
		return "", d.mapError(err, key)
	}
	return strings.Trim(aws.ToString(out.ETag), `"`), nil
}

// AbortMultipart releases object-store state for an upload. Abort failures
// are logged and swallowed; the caller's error path matters more.
func (d *Driver) AbortMultipart(ctx context.Context, key, uploadID string) {
	if !d.caps.Has(CapMultipart) {
		return
	}

	_, err := d.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(d.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		logger.Warn("abort multipart upload failed", "key", key, "upload_id", uploadID, "error", err)
	}
}

// errorStatus extracts the HTTP status of an SDK error, or 0.
func errorStatus(err error) int {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

// isNotFound reports whether the error is a missing-key error.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" {
			return true
		}
	}
	return errorStatus(err) == http.StatusNotFound
}

// mapError converts SDK errors to gateway error kinds. S3 error text is never
// surfaced to clients; callers log the wrapped cause with an error ID.
func (d *Driver) mapError(err error, key string) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return &gwerrors.GatewayError{Code: gwerrors.ErrNotFound, Message: "object not found", Path: key, Err: err}
	}
	if status := errorStatus(err); status >= 500 || status == 0 {
		return &gwerrors.GatewayError{Code: gwerrors.ErrUpstreamUnavailable, Message: "storage backend unavailable", Path: key, Err: err}
	}
	return err
}
