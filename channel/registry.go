package channel

import (
	"net/http"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/db"
)

// New constructs the Handler for a channel tag, decoding the given raw
// ChannelParams bag. apiBase feeds notify_url construction; httpClient is
// reused across Alipay outbound calls (WeChat refund builds its own mTLS
// client per ChannelParams row).
func New(channelTag string, raw db.JSONField, apiBase string, httpClient *http.Client) (Handler, error) {
	switch channelTag {
	case Alipay:
		return NewAlipayPcDirect(raw, apiBase, httpClient)
	case AlipayWap:
		return NewAlipayWap(raw, apiBase, httpClient)
	case Wx:
		return NewWxPub(raw, apiBase)
	case WxLite:
		return NewWxLite(raw, apiBase)
	default:
		return nil, apierr.New(apierr.MalformedRequest, "unknown channel %q", channelTag)
	}
}

// AvailableChannels lists every channel tag a SubApp could plausibly
// support, used to derive the "available methods" listing in the SubApp
// retrieval response.
var AvailableChannels = []string{Alipay, AlipayWap, Wx, WxLite}
