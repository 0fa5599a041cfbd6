package backup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/idlookup/internal/core"
)

// fakeS3 keeps PUT bodies and headers in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers map[string]http.Header
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	key := strings.TrimPrefix(req.URL.Path, "/")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if body, err = decodeAWSChunked(body); err != nil {
				return nil, err
			}
		}
		f.objects[key] = body
		f.headers[key] = req.Header.Clone()
		return response(http.StatusOK, nil), nil
	}
	return response(http.StatusNotImplemented, nil), nil
}

func response(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header: http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"ETag":           {`"etag"`},
		},
		Body: io.NopCloser(bytes.NewReader(body)),
	}
}

// decodeAWSChunked strips aws-chunked framing: hex size lines, data, and a
// terminating zero-length chunk followed by optional trailers.
func decodeAWSChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, n); err != nil {
			return nil, err
		}
		if _, err := r.Discard(2); err != nil {
			return nil, err
		}
	}
}

type staticSource struct {
	records []core.Record
	err     error
}

func (s staticSource) Records(context.Context) ([]core.Record, error) { return s.records, s.err }

func newTestExporter(t *testing.T, src Source) (*Exporter, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, headers: map[string]http.Header{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("http://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
	})
	e := NewWithClient(client, "snaps", "daily", src)
	e.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }
	return e, fake
}

func TestExporter_Export(t *testing.T) {
	records := []core.Record{
		{Name: "jasim al salmi", Code: "c-61", ExternalID: "123456789012345"},
		{Name: "noura", ExternalID: "333333333333333"},
	}
	e, fake := newTestExporter(t, staticSource{records: records})
	ctx := context.Background()

	res, err := e.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "daily/directory-20261019T083000Z.json.zst", res.Key)
	assert.Equal(t, 2, res.Records)
	assert.Positive(t, res.Bytes)

	stored := fake.objects["snaps/"+res.Key]
	require.NotEmpty(t, stored)
	assert.Equal(t, "application/json", fake.headers["snaps/"+res.Key].Get("Content-Type"))
	snap, err := Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, records, snap.Records)
	assert.True(t, snap.CreatedAt.Equal(time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)))
}

func TestExporter_SourceFailure(t *testing.T) {
	e, fake := newTestExporter(t, staticSource{err: core.ErrStoreUnavailable})

	_, err := e.Export(context.Background())
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
	assert.Empty(t, fake.objects)
}

func TestNew_Disabled(t *testing.T) {
	_, err := New(context.Background(), Config{}, staticSource{})
	assert.True(t, errors.Is(err, ErrDisabled))
}

func TestNew_StaticCredentials(t *testing.T) {
	e, err := New(context.Background(), Config{
		Bucket:          "snaps",
		Endpoint:        "http://minio.local:9000",
		PathStyle:       true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
	}, staticSource{})
	require.NoError(t, err)
	assert.Equal(t, "snaps", e.bucket)
}

func TestKeyFor(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		prefix, want string
	}{
		{"", "directory-20260102T030405Z.json.zst"},
		{"snapshots/", "snapshots/directory-20260102T030405Z.json.zst"},
		{"snapshots", "snapshots/directory-20260102T030405Z.json.zst"},
	}
	for _, tt := range tests {
		e := &Exporter{prefix: tt.prefix}
		assert.Equal(t, tt.want, e.keyFor(at))
	}
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Snapshot{Version: 99}))
	_, err := Decode(&buf)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	e, _ := newTestExporter(t, staticSource{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
