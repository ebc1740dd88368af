package channel

import (
	"io"
	"net/http"
	"strings"

	"github.com/heidian/pingxx-gateway/apierr"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func readAll(resp *http.Response) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "read wechat response body")
	}
	return string(body), nil
}
