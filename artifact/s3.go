// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package artifact

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/esims/chainvault/digest"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/retry"
)

// DefaultRetryPolicy governs retries of temporary S3 failures.
var DefaultRetryPolicy = retry.MaxRetries(retry.Jitter(retry.Backoff(time.Second, time.Minute, 2), 0.25), 3)

// S3 stores artifacts under a bucket prefix.
type S3 struct {
	client  s3iface.S3API
	bucket  string
	prefix  string
	retrier retry.Policy
}

// NewS3 returns a store writing to s3://bucket/prefix.
func NewS3(client s3iface.S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), retrier: DefaultRetryPolicy}
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put implements Store. An object already at the key is reported as
// Exists. Temporary failures are retried under DefaultRetryPolicy.
func (s *S3) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := s.key(name)
	ref := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch err = ctxErr(ctx, err); {
	case err == nil:
		return "", errors.E(errors.Exists, "artifact", ref)
	case kind(err) != errors.NotExist:
		return "", errors.E(kind(err), "checking artifact", ref, err)
	}
	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Metadata: map[string]*string{"sha256": aws.String(digest.FromBytes(data).Hex())},
	}
	for retries := 0; ; retries++ {
		input.Body = bytes.NewReader(data)
		_, err = s.client.PutObjectWithContext(ctx, input)
		if err = ctxErr(ctx, err); err == nil {
			return ref, nil
		}
		if sev := severity(err); sev != errors.Temporary && sev != errors.Retriable {
			return "", errors.E(kind(err), "writing artifact", ref, err)
		}
		if werr := retry.Wait(ctx, s.retrier, retries); werr != nil {
			return "", errors.E(errors.TooManyTries, "writing artifact", ref, err)
		}
	}
}

// bucketKey splits an s3:// URL into its bucket and key.
func bucketKey(rawurl string) (string, string, error) {
	u, err := url.Parse(rawurl)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", errors.E(errors.Invalid, fmt.Sprintf("cannot determine bucket and key from %q", rawurl), err)
	}
	return u.Host, strings.TrimPrefix(rawurl, "s3://"+u.Host+"/"), nil
}
