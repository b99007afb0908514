// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/esims/chainvault/config"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/retry"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "artifact")
	defer cleanup()
	l := NewLocal(filepath.Join(dir, "out"))

	name := Name(7)
	expect.True(t, strings.HasPrefix(name, "7/recovered-"))
	ref, err := l.Put(ctx, name, []byte("recovered bytes"))
	assert.NoError(t, err)
	b, err := os.ReadFile(ref)
	assert.NoError(t, err)
	expect.EQ(t, string(b), "recovered bytes")

	_, err = l.Put(ctx, name, []byte("other bytes"))
	expect.True(t, errors.Is(errors.Exists, err))
	b, err = os.ReadFile(ref)
	assert.NoError(t, err)
	expect.EQ(t, string(b), "recovered bytes")

	entries, err := os.ReadDir(filepath.Dir(ref))
	assert.NoError(t, err)
	expect.EQ(t, len(entries), 1)

	for _, bad := range []string{"", "../escape.bin", "/abs.bin", "a/../../b"} {
		_, err := l.Put(ctx, bad, nil)
		expect.True(t, errors.Is(errors.Invalid, err), bad)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(config.ArtifactSettings{Dir: "somewhere"})
	assert.NoError(t, err)
	_, ok := s.(*Local)
	expect.True(t, ok)
	_, err = Open(config.ArtifactSettings{S3: "s3://"})
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestBucketKey(t *testing.T) {
	bucket, key, err := bucketKey("s3://vault/recovered/docs")
	assert.NoError(t, err)
	expect.EQ(t, bucket, "vault")
	expect.EQ(t, key, "recovered/docs")
	_, _, err = bucketKey("https://vault/x")
	expect.True(t, errors.Is(errors.Invalid, err))
}

type fakeS3 struct {
	s3iface.S3API
	mu      sync.Mutex
	objects map[string][]byte
	putErrs []error
	headErr error
	puts    int
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return nil, f.headErr
	}
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, awserr.New("NotFound", "Not Found", nil)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		return nil, err
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func newS3(f *fakeS3) *S3 {
	s := NewS3(f, "vault", "/recovered/")
	s.retrier = retry.MaxRetries(retry.Backoff(time.Millisecond, time.Millisecond, 1), 3)
	return s
}

func TestS3(t *testing.T) {
	ctx := context.Background()
	f := &fakeS3{objects: make(map[string][]byte)}
	s := newS3(f)

	ref, err := s.Put(ctx, "1/a.bin", []byte("abc"))
	assert.NoError(t, err)
	expect.EQ(t, ref, "s3://vault/recovered/1/a.bin")
	expect.EQ(t, string(f.objects["vault/recovered/1/a.bin"]), "abc")

	_, err = s.Put(ctx, "1/a.bin", []byte("xyz"))
	expect.True(t, errors.Is(errors.Exists, err))
	expect.EQ(t, string(f.objects["vault/recovered/1/a.bin"]), "abc")
	expect.EQ(t, f.puts, 1)
}

func TestS3Retry(t *testing.T) {
	ctx := context.Background()
	f := &fakeS3{
		objects: make(map[string][]byte),
		putErrs: []error{awserr.New("InternalError", "try again", nil), awserr.New("SlowDown", "slow", nil)},
	}
	s := newS3(f)
	_, err := s.Put(ctx, "2/b.bin", []byte("payload"))
	assert.NoError(t, err)
	expect.EQ(t, f.puts, 3)
	expect.EQ(t, string(f.objects["vault/recovered/2/b.bin"]), "payload")

	f.putErrs = []error{awserr.New("AccessDenied", "no", nil)}
	_, err = s.Put(ctx, "2/c.bin", []byte("payload"))
	expect.True(t, errors.Is(errors.NotAllowed, err))

	f.headErr = awserr.New("AccessDenied", "no", nil)
	_, err = s.Put(ctx, "2/d.bin", []byte("payload"))
	expect.True(t, errors.Is(errors.NotAllowed, err))
}
