package poster

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "announcebot/pkg/logx"
)

// DryRun logs content instead of publishing it. Sent messages are kept in
// memory so status commands and tests can inspect them.
type DryRun struct {
	log logx.Logger
	now func() time.Time

	mu   sync.Mutex
	sent []string
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log, now: time.Now}
}

func (d *DryRun) Name() string { return "dryrun" }

func (d *DryRun) Send(ctx context.Context, content string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, transient(err)
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, rejected(ErrEmptyContent)
	}
	id := "dry-" + uuid.NewString()
	d.mu.Lock()
	d.sent = append(d.sent, content)
	d.mu.Unlock()
	d.log.Info("dry run post", logx.String("id", id), logx.Int("len", len([]rune(content))), logx.String("content", content))
	return Result{ExternalID: id, SentAt: d.now().UTC()}, nil
}

func (d *DryRun) HealthCheck(context.Context) error { return nil }

// Sent returns a copy of everything "posted" so far.
func (d *DryRun) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}
