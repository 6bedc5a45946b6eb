package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"matelock-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func completedDoc(at time.Time) *models.SetupDocument {
	doc := models.NewSetupDocument(at)
	doc.Phase = models.PhaseComplete
	doc.CompletedAt = &at
	doc.ApprovedAnswers["alice"] = models.ApprovedConfig{AppSelection: appSelection("YXBwMQ==")}
	return doc
}

func TestArchiveWritesBothKeys(t *testing.T) {
	objects := &memObjects{}
	archive := NewArchiveServiceWithStore(objects, "configs")
	pair := &models.Pair{ID: "p1", MemberA: "alice", MemberB: "bob"}
	at := time.Unix(1772443800, 0).UTC()

	require.NoError(t, archive.Archive(context.Background(), pair, completedDoc(at)))

	require.Contains(t, objects.objects, "configs/p1/setup-1772443800.json")
	require.Contains(t, objects.objects, "configs/p1/setup-latest.json")

	var record ArchiveRecord
	require.NoError(t, json.Unmarshal(objects.objects["configs/p1/setup-latest.json"], &record))
	assert.Equal(t, "p1", record.PairID)
	assert.Equal(t, "bob", record.MemberB)
	assert.True(t, at.Equal(record.CompletedAt))
	assert.True(t, record.ApprovedAnswers["alice"].Has(models.StepAppSelection))
}

func TestArchiveErrors(t *testing.T) {
	ctx := context.Background()
	pair := &models.Pair{ID: "p1", MemberA: "alice", MemberB: "bob"}

	archive := NewArchiveServiceWithStore(&memObjects{}, "configs")
	require.Error(t, archive.Archive(ctx, pair, models.NewSetupDocument(time.Now())))

	failing := NewArchiveServiceWithStore(&memObjects{err: errors.New("denied")}, "configs")
	require.Error(t, failing.Archive(ctx, pair, completedDoc(time.Now())))

	_, err := archive.LatestURL(ctx, "p1")
	require.Error(t, err)
}

func TestArchiveLatestURL(t *testing.T) {
	archive, err := NewArchiveService(context.Background(), ArchiveConfig{
		Region:          "us-east-1",
		Bucket:          "configs",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "test",
		SecretAccessKey: "test-secret",
	})
	require.NoError(t, err)

	res, err := archive.LatestURL(context.Background(), "p1")
	require.NoError(t, err)
	assert.Contains(t, res.URL, "localhost:9000/configs/p1/setup-latest.json")
	assert.Contains(t, res.URL, "X-Amz-Signature=")
	assert.Equal(t, 300, res.ExpiresIn)
}

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "p1/setup-60.json", ArchiveKey("p1", time.Unix(60, 0)))
}

func TestSetupCompletionArchivesThroughService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	objects := &memObjects{}
	f.setup.archiver = NewArchiveServiceWithStore(objects, "configs")
	pair := f.pair(t)

	steps := []func() error{
		func() error {
			_, err := f.setup.Submit(ctx, "alice", models.StepAppSelection, appSelection("YXBwMQ=="))
			return err
		},
		func() error { _, err := f.setup.Approve(ctx, "bob", models.StepAppSelection); return err },
		func() error {
			_, err := f.setup.Submit(ctx, "alice", models.StepWeeklySchedule, weekdayEvenings())
			return err
		},
		func() error { _, err := f.setup.Approve(ctx, "bob", models.StepWeeklySchedule); return err },
		func() error {
			_, err := f.setup.Submit(ctx, "bob", models.StepWeeklySchedule, weekdayEvenings())
			return err
		},
		func() error { _, err := f.setup.Approve(ctx, "alice", models.StepWeeklySchedule); return err },
	}
	for _, step := range steps {
		require.NoError(t, step())
	}

	assert.Contains(t, objects.objects, "configs/"+ArchiveKey(pair.ID, f.clock))
}
