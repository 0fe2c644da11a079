package browser

import (
	"strings"

	"portalgrades/lib/restyutil"

	"github.com/go-resty/resty/v2"
)

func newDumper(dir string) (func(*resty.Client, string), error) {
	output, err := restyutil.NewFilesystemOutput(dir)
	if err != nil {
		return nil, err
	}
	return func(client *resty.Client, jobID string) {
		restyutil.Dump(client, output, strings.ReplaceAll(jobID, "/", "_"))
	}, nil
}
