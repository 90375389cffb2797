package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobliat/kobliat-stack/common/dlq"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func seeded(t *testing.T, n int) *dlq.MemoryQueue {
	t.Helper()
	q := dlq.NewMemoryQueue()
	failedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range n {
		require.NoError(t, q.Write(context.Background(), dlq.Entry{
			ID:        "dlq_" + string(rune('a'+i)),
			JobID:     "job_" + string(rune('a'+i)),
			MessageID: "msg-1",
			Channel:   "whatsapp",
			Reason:    dlq.ReasonAttemptsExhausted,
			Error:     "provider unavailable",
			Attempts:  3,
			FailedAt:  failedAt,
			Job:       json.RawMessage(`{"id":"job"}`),
		}))
	}
	return q
}

func TestEncode_JSONLines(t *testing.T) {
	entries, _ := seeded(t, 2).List(context.Background(), 0)

	data, err := Encode(entries)
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines []dlq.Entry
	for scanner.Scan() {
		var e dlq.Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		lines = append(lines, e)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "dlq_a", lines[0].ID)
	assert.Equal(t, "dlq_b", lines[1].ID)
	assert.JSONEq(t, `{"id":"job"}`, string(lines[0].Job))

	empty, err := Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDefaultKey(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 5, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "dispatch-dlq/2024-06-01T100005Z.jsonl", DefaultKey(now))
}

func TestRun_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "dlq.jsonl")

	n, err := Run(context.Background(), seeded(t, 3), FileDestination{Path: path}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))
}

func TestRun_ToS3(t *testing.T) {
	client := &fakeS3{}
	dst := NewS3DestinationWithClient(client, "ops-exports", "dispatch-dlq/today.jsonl")
	assert.Equal(t, "s3://ops-exports/dispatch-dlq/today.jsonl", dst.String())

	n, err := Run(context.Background(), seeded(t, 1), dst, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotNil(t, client.input)
	assert.Equal(t, "ops-exports", aws.ToString(client.input.Bucket))
	assert.Equal(t, "dispatch-dlq/today.jsonl", aws.ToString(client.input.Key))
	assert.Equal(t, "application/x-ndjson", aws.ToString(client.input.ContentType))
	assert.Contains(t, string(client.body), `"job_id":"job_a"`)
}

func TestRun_S3Failure(t *testing.T) {
	client := &fakeS3{err: errors.New("access denied")}
	_, err := Run(context.Background(), seeded(t, 1), NewS3DestinationWithClient(client, "b", "k"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
