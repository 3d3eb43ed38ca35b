package natsutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type event struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type fakeConn struct {
	published []*nats.Msg
	handlers  map[string]nats.MsgHandler
	err       error
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, m)
	return nil
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if f.handlers == nil {
		f.handlers = map[string]nats.MsgHandler{}
	}
	f.handlers[subject] = cb
	return &nats.Subscription{Subject: subject}, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)
	if c.Get("missing") != "" || c.Keys() != nil {
		t.Fatal("empty carrier should have no values")
	}
	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("Get = %q", got)
	}
	if keys := c.Keys(); len(keys) != 1 {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestEncodeDecodeCarriesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	msg, err := Encode(ctx, "curator.test", event{Name: "a", Value: 1})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Header.Get("traceparent") == "" {
		t.Fatal("traceparent header missing")
	}

	got, v, err := Decode[event](msg)
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "a" || v.Value != 1 {
		t.Fatalf("unexpected payload %+v", v)
	}
	if trace.SpanContextFromContext(got).TraceID() != sc.TraceID() {
		t.Fatal("trace id not propagated")
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := Encode(context.Background(), "x", func() {}); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestPublish(t *testing.T) {
	fc := &fakeConn{}
	if err := Publish(context.Background(), fc, "curator.test", event{Name: "b"}); err != nil {
		t.Fatal(err)
	}
	if len(fc.published) != 1 || fc.published[0].Subject != "curator.test" {
		t.Fatalf("unexpected publish %+v", fc.published)
	}
	fc.err = errors.New("closed")
	if err := Publish(context.Background(), fc, "curator.test", event{}); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestSubscribeDecodesAndDropsMalformed(t *testing.T) {
	fc := &fakeConn{}
	var got []event
	if _, err := Subscribe(fc, "curator.test", quiet(), func(_ context.Context, e event) {
		got = append(got, e)
	}); err != nil {
		t.Fatal(err)
	}
	cb := fc.handlers["curator.test"]
	cb(&nats.Msg{Subject: "curator.test", Data: []byte("{broken")})
	cb(&nats.Msg{Subject: "curator.test", Data: []byte(`{"name":"ok","value":7}`)})

	if len(got) != 1 || got[0].Value != 7 {
		t.Fatalf("handler calls = %+v", got)
	}
}
