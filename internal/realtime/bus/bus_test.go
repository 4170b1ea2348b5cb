package bus

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/realtime"
)

func TestLocalBusForwards(t *testing.T) {
	b := NewLocalBus()
	var got []realtime.Message
	if err := b.StartForwarder(context.Background(), func(m realtime.Message) { got = append(got, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Publish(context.Background(), realtime.Message{Channel: "document:x", Event: realtime.EventDocumentStatus}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "document:x" {
		t.Fatalf("forwarded: %+v", got)
	}
	if err := b.StartForwarder(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	b, err := NewRedisBus(logger.Nop(), rdb, "docquiz.test."+time.Now().Format("150405.000"))
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recv := make(chan realtime.Message, 1)
	if err := b.StartForwarder(ctx, func(m realtime.Message) { recv <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Publish(ctx, realtime.Message{Channel: "module:y", Event: realtime.EventQuizReady}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-recv:
		if m.Event != realtime.EventQuizReady || m.Channel != "module:y" {
			t.Fatalf("message: %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for redis message")
	}
}
