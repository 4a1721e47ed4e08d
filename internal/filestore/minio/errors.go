package minio

import (
	"context"
	"errors"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/rowgate/internal/errs"
)

// mapError translates a MinIO SDK error into a *errs.Error, following the
// mapError pattern of the database drivers.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		if kind, ok := classify(resp); ok {
			return errs.Wrap(kind, msg, err)
		}
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classify(resp miniogo.ErrorResponse) (errs.ErrKind, bool) {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.ErrKindNotFound, true
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.ErrKindPermissionDenied, true
	case http.StatusBadRequest:
		return errs.ErrKindInvalidValue, true
	}

	// Some gateways report these codes with an unhelpful status.
	switch resp.Code {
	case "NoSuchBucket", "NoSuchKey", "NoSuchUpload":
		return errs.ErrKindNotFound, true
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errs.ErrKindPermissionDenied, true
	case "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
		return errs.ErrKindInvalidValue, true
	case "RequestTimeout", "SlowDown":
		return errs.ErrKindTimeout, true
	}
	return errs.ErrKindUnknown, false
}
