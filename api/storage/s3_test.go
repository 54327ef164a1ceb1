package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"rewind/api/retry"
)

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>deploys</Name><Prefix>serverless/svc/dev/</Prefix><MaxKeys>1</MaxKeys>
<IsTruncated>%t</IsTruncated><NextContinuationToken>%s</NextContinuationToken>
<Contents><Key>%s</Key><LastModified>2023-11-14T22:13:20.000Z</LastModified><Size>42</Size></Contents>
</ListBucketResult>`

// fakeS3 serves ListObjectsV2 for one bucket. Each call to next picks the
// response for one request.
func fakeS3(t *testing.T, next func(call int32, r *http.Request, w http.ResponseWriter)) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Method != http.MethodGet || r.URL.Query().Get("list-type") != "2" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
			http.Error(w, "unexpected", http.StatusBadRequest)
			return
		}
		next(n, r, w)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "us-east-1",
		Retry:     retry.Policy{Retries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c, &calls
}

func TestListDrainsPagesAfterTransientFailure(t *testing.T) {
	first := "serverless/svc/dev/1690000000000-2023-07-22T04:26:40.000Z/cloudformation-template-update-stack.json"
	second := "serverless/svc/dev/1700000000000-2023-11-14T22:13:20.000Z/cloudformation-template-update-stack.json"

	c, calls := fakeS3(t, func(call int32, r *http.Request, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/xml")
		switch {
		case call == 1:
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Query().Get("continuation-token") == "":
			fmt.Fprintf(w, listPage, true, "page-2", first)
		case r.URL.Query().Get("continuation-token") == "page-2":
			fmt.Fprintf(w, listPage, false, "", second)
		default:
			t.Errorf("unexpected continuation token %q", r.URL.Query().Get("continuation-token"))
		}
	})

	entries, err := c.List(context.Background(), "deploys", "serverless/svc/dev/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != first || entries[1].Key != second {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Size != 42 {
		t.Errorf("size = %d, want 42", entries[0].Size)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("requests = %d, want 3 (failure, page 1, page 2)", got)
	}
}

func TestListStopsOnMissingBucket(t *testing.T) {
	c, calls := fakeS3(t, func(call int32, r *http.Request, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchBucket</Code><Message>The specified bucket does not exist</Message><BucketName>deploys</BucketName></Error>`)
	})

	_, err := c.List(context.Background(), "deploys", "serverless/svc/dev/")
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := minio.ToErrorResponse(errors.Unwrap(err)).Code; code != "NoSuchBucket" {
		t.Errorf("code = %q, want NoSuchBucket (err %v)", code, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestListGivesUpAfterRetries(t *testing.T) {
	c, calls := fakeS3(t, func(call int32, r *http.Request, w http.ResponseWriter) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := c.List(context.Background(), "deploys", "serverless/svc/dev/"); err == nil {
		t.Fatal("expected an error")
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("requests = %d, want 4 (one attempt plus three retries)", got)
	}
}

func TestObjectURL(t *testing.T) {
	got := ObjectURL("s3.amazonaws.com", true, "svc-deploys",
		"serverless/svc/dev/1700000000000-2023-11-14T22:13:20.000Z/cloudformation-template-update-stack.json")
	want := "https://s3.amazonaws.com/svc-deploys/serverless/svc/dev/1700000000000-2023-11-14T22:13:20.000Z/cloudformation-template-update-stack.json"
	if got != want {
		t.Errorf("ObjectURL = %q\nwant %q", got, want)
	}
}

func TestObjectURLPlainHTTP(t *testing.T) {
	got := ObjectURL("localhost:9000/", false, "b", "/k.json")
	if got != "http://localhost:9000/b/k.json" {
		t.Errorf("ObjectURL = %q", got)
	}
}

func TestPermanent(t *testing.T) {
	if !permanent(minio.ErrorResponse{Code: "NoSuchBucket"}) {
		t.Error("NoSuchBucket should be permanent")
	}
	if permanent(minio.ErrorResponse{Code: "SlowDown"}) {
		t.Error("SlowDown should be retried")
	}
	if permanent(errors.New("connection reset by peer")) {
		t.Error("transport errors should be retried")
	}
}
