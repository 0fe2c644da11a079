package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestRedactForm(t *testing.T) {
	redacted := RedactForm("username=jdoe&password=hunter2&appName=ala")
	values, err := url.ParseQuery(redacted)
	require.NoError(t, err)
	require.Equal(t, "jdoe", values.Get("username"))
	require.Equal(t, "<redacted>", values.Get("password"))
	require.Equal(t, "ala", values.Get("appName"))

	require.Equal(t, "", RedactForm(""))
}

func TestRequestBodyWithoutReader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://localhost", nil)
	require.NoError(t, err)
	req.GetBody = func() (io.ReadCloser, error) { return nil, nil }

	span := trace.SpanFromContext(context.Background())
	require.NotPanics(t, func() { instrumentRequestBody(span, req) })
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key(key) {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestInstrumentResty(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	client := resty.New()
	InstrumentResty(client, "resty_test")

	res, err := client.R().Get(server.URL + "/login")
	require.NoError(t, err)
	require.Equal(t, "ok", res.String())

	_, err = client.R().
		SetFormData(map[string]string{"username": "jdoe", "password": "hunter2"}).
		Post(server.URL + "/login")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "http GET", spans[0].Name())
	_, ok := spanAttr(spans[0], "request/body")
	require.False(t, ok)

	require.Equal(t, "http POST", spans[1].Name())
	body, ok := spanAttr(spans[1], "request/body")
	require.True(t, ok)
	values, err := url.ParseQuery(body)
	require.NoError(t, err)
	require.Equal(t, "<redacted>", values.Get("password"))
	require.Equal(t, "jdoe", values.Get("username"))
}
