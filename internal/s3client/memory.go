package s3client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"

	"github.com/kuitang/sticky-canvas/internal/obs"
)

// InMemory is a bucket served by an in-process gofakes3 server on a
// loopback port. Objects are lost when it is closed.
type InMemory struct {
	*Client
	URL string
	srv *http.Server
}

// NewInMemory starts a fake S3 server and creates bucketName on it.
func NewInMemory(ctx context.Context, bucketName string) (*InMemory, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("s3client: listen: %w", err)
	}
	faker := gofakes3.New(s3mem.New())
	srv := &http.Server{Handler: faker.Server(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Pkg("s3client").Error("in-memory s3 stopped", "error", err)
		}
	}()
	url := "http://" + ln.Addr().String()

	client, err := New(ctx, Config{
		Endpoint:        url,
		Region:          "us-east-1",
		AccessKeyID:     "local",
		SecretAccessKey: "local",
		BucketName:      bucketName,
		PublicURL:       url,
		UsePathStyle:    true,
	})
	if err != nil {
		srv.Close()
		return nil, err
	}
	if _, err := client.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		srv.Close()
		return nil, fmt.Errorf("s3client: create bucket %q: %w", bucketName, err)
	}
	return &InMemory{Client: client, URL: url, srv: srv}, nil
}

// Close stops the server.
func (m *InMemory) Close() error {
	return m.srv.Close()
}
