// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package artifact persists recovered documents. An artifact is never
// overwritten: each recovery writes a new, uniquely named object, and a
// write either completes or leaves nothing behind.
package artifact

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/esims/chainvault/config"
	"github.com/esims/chainvault/errors"
	"github.com/google/uuid"
)

// Store writes artifacts.
type Store interface {
	// Put writes data under name and returns a reference to it. It
	// fails with Exists if name is already taken.
	Put(ctx context.Context, name string, data []byte) (ref string, err error)
}

// Name returns a fresh artifact name for a recovered copy of docID.
func Name(docID int64) string {
	return fmt.Sprintf("%d/recovered-%s.bin", docID, uuid.New())
}

// Open returns the store the settings describe: an S3 prefix when one
// is set, a local directory otherwise.
func Open(s config.ArtifactSettings) (Store, error) {
	if s.S3 == "" {
		dir := s.Dir
		if dir == "" {
			dir = config.DefaultArtifactDir
		}
		return NewLocal(dir), nil
	}
	bucket, prefix, err := bucketKey(s.S3)
	if err != nil {
		return nil, err
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(s.Region)})
	if err != nil {
		return nil, errors.E(errors.NotConfigured, "aws session", err)
	}
	return NewS3(s3.New(sess), bucket, prefix), nil
}
