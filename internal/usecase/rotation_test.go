package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

func quotaStep(after time.Duration) step {
	return step{err: &domain.QuotaError{RetryAfter: after}}
}

type factoryLog struct {
	opened   []int
	backends map[int]*scriptedGenerator
}

func (f *factoryLog) open(_ context.Context, credential int) (ports.AnswerGenerator, error) {
	f.opened = append(f.opened, credential)
	return f.backends[credential], nil
}

func TestRotateAdvancesCredentialOnQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)
	insertItems(t, repo,
		feedbackItem("fb-1", "Rose Noir 50ml", "Очень стойкий", 5),
		feedbackItem("fb-2", "Oud Royal", "Шикарный шлейф", 5),
	)

	factory := &factoryLog{backends: map[int]*scriptedGenerator{
		1: {fallback: quotaStep(10 * time.Second)},
		2: {fallback: step{text: "Спасибо!"}},
	}}
	rotation := NewRotation(newTestGeneration(repo, perfumeCatalog(t)), factory.open,
		RotationOptions{Policy: PolicyRotate, Credentials: 3}, nil)

	report, err := rotation.Run(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 2}, factory.opened, "a pass without quota keeps the credential")
	assert.Equal(t, 2, report.Generated)
	assert.Equal(t, StopDrained, report.StopReason)
	assert.True(t, report.QuotaHit)
	assert.Equal(t, 10*time.Second, report.RetryAfter)
	assert.Len(t, statusOf(t, repo, domain.KindFeedback, domain.StatusGenerated), 2)
}

func TestRotateStopsWhenEveryCredentialIsExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)
	insertItems(t, repo, feedbackItem("fb-1", "Rose Noir 50ml", "Очень стойкий", 5))

	factory := &factoryLog{backends: map[int]*scriptedGenerator{
		0: {fallback: quotaStep(time.Second)},
		1: {fallback: quotaStep(time.Second)},
	}}
	rotation := NewRotation(newTestGeneration(repo, perfumeCatalog(t)), factory.open,
		RotationOptions{Policy: PolicyRotate, Credentials: 2}, nil)

	report, err := rotation.Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, factory.opened)
	assert.Equal(t, StopNoProgress, report.StopReason)
	assert.Len(t, statusOf(t, repo, domain.KindFeedback, domain.StatusLoaded), 1)
}

func TestSleepPolicyStaysOnCredentialAndCapsWait(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)
	insertItems(t, repo, feedbackItem("fb-1", "Rose Noir 50ml", "Очень стойкий", 5))

	backend := &scriptedGenerator{
		script:   []step{quotaStep(40 * time.Second), quotaStep(2 * time.Second)},
		fallback: step{text: "Спасибо!"},
	}
	factory := &factoryLog{backends: map[int]*scriptedGenerator{2: backend}}

	var waits []time.Duration
	rotation := NewRotation(newTestGeneration(repo, perfumeCatalog(t)), factory.open, RotationOptions{
		Policy:      PolicySleep,
		Credentials: 3,
		MaxSleep:    15 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}, nil)

	report, err := rotation.Run(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 2}, factory.opened)
	assert.Equal(t, []time.Duration{15 * time.Second, 2 * time.Second}, waits)
	assert.Equal(t, 1, report.Generated)
	assert.Equal(t, StopDrained, report.StopReason)
}

func TestRotationRequiresCredentials(t *testing.T) {
	t.Parallel()

	rotation := NewRotation(nil, nil, RotationOptions{}, nil)
	_, err := rotation.Run(context.Background(), 0)
	var cfgErr *domain.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
