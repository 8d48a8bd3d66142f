package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// OutboxSender appends every message to a local file, one header line
// followed by the body. Development setups read codes from it.
type OutboxSender struct {
	Path string

	mu sync.Mutex
}

func (o *OutboxSender) Send(_ context.Context, m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(o.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir outbox: %w", err)
	}
	f, err := os.OpenFile(o.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] to=%q subject=%q\n%s\n", time.Now().UTC().Format(time.RFC3339), m.To, m.Subject, m.HTML)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}
