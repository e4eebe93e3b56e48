package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"clipwise/internal/storage"
)

type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	pageSize int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}, pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := min(start+f.pageSize, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	modified := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(f.objects[key]))),
			LastModified: aws.Time(modified),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func TestS3PutRefusesOverwrite(t *testing.T) {
	client := newFakeS3()
	store, err := storage.NewS3(client, "media", "prod", nil)
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	ctx := context.Background()
	key := "media-raw/video/archive/tech/t/clip-1.mp4"
	if err := store.Put(ctx, key, []byte("v1"), "video/mp4"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := client.objects["prod/"+key]; !ok {
		t.Fatalf("expected object under bucket prefix, have %v", client.objects)
	}
	if client.types["prod/"+key] != "video/mp4" {
		t.Fatalf("content type not forwarded: %q", client.types["prod/"+key])
	}
	if err := store.Put(ctx, key, []byte("v2"), "video/mp4"); !errors.Is(err, storage.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "v1" {
		t.Fatalf("Get = %q", data)
	}
}

func TestS3GetMissing(t *testing.T) {
	store, err := storage.NewS3(newFakeS3(), "media", "", nil)
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if _, err := store.Get(context.Background(), "media-raw/none.mp4"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestS3ListPaginates(t *testing.T) {
	client := newFakeS3()
	store, err := storage.NewS3(client, "media", "prod", nil)
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	ctx := context.Background()
	for i := range 5 {
		key := "media-processed/video/wikimedia/nature/t/clip-" + strconv.Itoa(i) + "_labels.json"
		if err := store.Put(ctx, key, []byte("{}"), "application/json"); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := store.Put(ctx, "media-raw/video/wikimedia/nature/t/clip-0.webm", []byte("raw"), ""); err != nil {
		t.Fatalf("Put raw: %v", err)
	}

	objects, err := store.List(ctx, "media-processed/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 5 {
		t.Fatalf("expected 5 objects across pages, got %d", len(objects))
	}
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, "prod/") {
			t.Fatalf("bucket prefix leaked into key %q", obj.Key)
		}
		if obj.Size != 2 {
			t.Fatalf("unexpected size for %s: %d", obj.Key, obj.Size)
		}
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := storage.NewS3(newFakeS3(), " ", "", nil); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}
