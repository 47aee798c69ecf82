package streaming

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
)

func TestLogPublisherWritesEventAsJSON(t *testing.T) {
	var buf bytes.Buffer
	p := &LogPublisher{logger: log.New(&buf, "", 0)}

	err := p.Publish(context.Background(), Event{
		Topic:    "priority-migrated",
		Priority: "user-blocking",
		Detail:   map[string]string{"from": "background", "to": "user-blocking"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "priority-migrated") {
		t.Errorf("log output missing topic: %s", out)
	}
	if !strings.Contains(out, `"priority":"user-blocking"`) {
		t.Errorf("log output missing priority: %s", out)
	}
	if !strings.Contains(out, `"from":"background"`) {
		t.Errorf("log output missing detail: %s", out)
	}
	if strings.Contains(out, `"id":""`) {
		t.Errorf("Publish must stamp an ID on events that lack one: %s", out)
	}
}

func TestLogPublisherClose(t *testing.T) {
	var buf bytes.Buffer
	p := &LogPublisher{logger: log.New(&buf, "", 0)}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
