// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package artifact

import (
	"context"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/esims/chainvault/errors"
)

// ctxErr returns the context's error, if any, in place of err. The SDK
// sometimes wraps context cancellation in its own errors.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func kind(err error) errors.Kind {
	k, _ := kindAndSeverity(err)
	return k
}

func severity(err error) errors.Severity {
	_, s := kindAndSeverity(err)
	return s
}

// kindAndSeverity classifies an S3 API error.
func kindAndSeverity(err error) (errors.Kind, errors.Severity) {
	switch err {
	case context.Canceled:
		return errors.Canceled, errors.Fatal
	case context.DeadlineExceeded:
		return errors.Timeout, errors.Fatal
	}
	for {
		if request.IsErrorThrottle(err) {
			return errors.Unavailable, errors.Temporary
		}
		if request.IsErrorRetryable(err) {
			return errors.Unavailable, errors.Temporary
		}
		aerr, ok := err.(awserr.Error)
		if !ok {
			break
		}
		switch aerr.Code() {
		case request.CanceledErrorCode:
			return errors.Canceled, errors.Fatal
		// HeadObject reports a missing key as NotFound.
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
			return errors.NotExist, errors.Fatal
		case "AccessDenied", "Forbidden":
			return errors.NotAllowed, errors.Fatal
		case "InvalidRequest", "InvalidArgument", "EntityTooLarge", "KeyTooLong":
			return errors.Invalid, errors.Fatal
		case "ExpiredToken", "AccountProblem", "ServiceUnavailable", "TokenRefreshRequired":
			return errors.Unavailable, errors.Fatal
		case "SlowDown":
			return errors.Unavailable, errors.Temporary
		case "InternalError":
			return errors.Unavailable, errors.Retriable
		case request.ErrCodeRequestError, request.ErrCodeSerialization:
			return errors.Unavailable, errors.Temporary
		}
		if aerr.OrigErr() == nil {
			break
		}
		err = aerr.OrigErr()
	}
	return errors.Other, errors.Unknown
}
