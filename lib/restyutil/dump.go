package restyutil

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type Output interface {
	Write(id string, contents string)
}

// Dump writes every request/response exchange of client to output, the
// files are named "<prefix>-<n>.txt" in request order.
func Dump(client *resty.Client, output Output, prefix string) {
	if output == nil {
		return
	}

	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := fmt.Sprintf("%s-%03d.txt", prefix, atomic.AddUint64(&counter, 1))
		output.Write(id, formatHttpMessage(res))
		slog.Debug(
			"dumped http exchange",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"file", id,
		)
		return nil
	})
}
