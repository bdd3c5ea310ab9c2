package sink

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/minio/minio-go/v7"

	"stemsplit/internal/retry"
	"stemsplit/internal/services"
)

var permanentCodes = map[string]struct{}{
	"AccessDenied":          {},
	"InvalidAccessKeyId":    {},
	"SignatureDoesNotMatch": {},
	"NoSuchBucket":          {},
	"InvalidBucketName":     {},
	"AccountProblem":        {},
	"EntityTooLarge":        {},
}

var transientCodes = map[string]struct{}{
	"SlowDown":                   {},
	"InternalError":              {},
	"RequestTimeout":             {},
	"ServiceUnavailable":         {},
	"XMinioServerNotInitialized": {},
}

// Classify decides whether a publish failure is worth retrying. Unknown
// failures are treated as transient.
func Classify(err error) retry.Class {
	switch {
	case err == nil:
		return retry.Transient
	case errors.Is(err, services.ErrSinkPermanent):
		return retry.Permanent
	case errors.Is(err, services.ErrSinkTransient):
		return retry.Transient
	case errors.Is(err, context.Canceled):
		return retry.Permanent
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return retry.Permanent
	case errors.Is(err, context.DeadlineExceeded):
		return retry.Transient
	}

	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if _, ok := permanentCodes[resp.Code]; ok {
			return retry.Permanent
		}
		if _, ok := transientCodes[resp.Code]; ok {
			return retry.Transient
		}
		return classifyStatus(resp.StatusCode)
	}

	// Network errors and anything unrecognised get another attempt.
	return retry.Transient
}

func classifyStatus(status int) retry.Class {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return retry.Transient
	case status >= 400 && status < 500:
		return retry.Permanent
	default:
		return retry.Transient
	}
}
