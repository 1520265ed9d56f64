package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ganz677/wb/internal/domain"
	"github.com/ganz677/wb/internal/ports"
)

// RequeueMode selects where failed items go back to.
type RequeueMode string

const (
	// RequeueResend keeps the stored answer and retries delivery.
	RequeueResend RequeueMode = "resend"
	// RequeueRegen drops the answer and sends the item back to generation.
	RequeueRegen RequeueMode = "regen"
)

// ParseRequeueMode accepts resend or regen.
func ParseRequeueMode(value string) (RequeueMode, error) {
	switch mode := RequeueMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case RequeueResend, RequeueRegen:
		return mode, nil
	default:
		return "", fmt.Errorf("requeue mode must be %s or %s, got %q", RequeueResend, RequeueRegen, value)
	}
}

func (m RequeueMode) target() domain.Status {
	if m == RequeueRegen {
		return domain.StatusLoaded
	}
	return domain.StatusGenerated
}

// Requeue moves failed items back into the pipeline.
type Requeue struct {
	repo ports.ItemRepository
}

// NewRequeue constructs the requeue use case.
func NewRequeue(repo ports.ItemRepository) *Requeue {
	return &Requeue{repo: repo}
}

// Run requeues failed items of the given kinds (all when empty) and returns how many moved.
func (r *Requeue) Run(ctx context.Context, mode RequeueMode, kinds []domain.Kind) (int64, error) {
	if _, err := ParseRequeueMode(string(mode)); err != nil {
		return 0, err
	}
	moved, err := r.repo.Requeue(ctx, kinds, mode.target())
	if err != nil {
		return 0, fmt.Errorf("requeue %s: %w", mode, err)
	}
	return moved, nil
}
