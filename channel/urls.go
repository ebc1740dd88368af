package channel

import "fmt"

func chargeNotifyURL(apiBase, chargeID string) string {
	return fmt.Sprintf("%s/notify/charges/%s", apiBase, chargeID)
}

func refundNotifyURL(apiBase, chargeID, refundID string) string {
	return fmt.Sprintf("%s/notify/charges/%s/refunds/%s", apiBase, chargeID, refundID)
}
