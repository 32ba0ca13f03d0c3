// Package outreach builds the links that open the dialer or the messaging app
// for a contact.
package outreach

import (
	"net/url"
	"strings"

	"github.com/tartampluch/go-ketchup/internal/config"
)

// TelHref returns a tel: link for phone, or "" when there is no phone.
func TelHref(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	return config.SchemeTel + phone
}

// SMSHref returns an sms: link prefilled with body. An empty body uses the
// default greeting.
func SMSHref(phone, body string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if body == "" {
		body = config.DefaultSMSMsg
	}
	return config.SchemeSMS + phone + config.SMSBodyParam + encodeComponent(body)
}

// encodeComponent escapes like JavaScript's encodeURIComponent: spaces become
// %20 and the marks -_.!~*'() stay literal.
func encodeComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	return strings.NewReplacer(
		"%21", "!",
		"%27", "'",
		"%28", "(",
		"%29", ")",
		"%2A", "*",
	).Replace(escaped)
}
