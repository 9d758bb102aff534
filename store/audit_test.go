package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kindred-inc/kindred-api/schema"
)

func TestMaskIPv4(t *testing.T) {
	assert.Equal(t, "203.0.113.0", maskIP("203.0.113.57"))
	assert.Equal(t, "10.20.30.0", maskIP("10.20.30.40"))
}

func TestMaskIPv6(t *testing.T) {
	assert.Equal(t, "2001:db8:85a3::", maskIP("2001:db8:85a3:8d3:1319:8a2e:370:7348"))
}

func TestMaskIPInvalid(t *testing.T) {
	assert.Equal(t, "", maskIP(""))
	assert.Equal(t, "", maskIP("not-an-ip"))
	assert.Equal(t, "", maskIP("999.999.999.999"))
}

func TestMaskAuditEventDropsUserAgent(t *testing.T) {
	event := schema.AuditEvent{
		IP:        "203.0.113.57",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64)",
	}
	maskAuditEvent(&event)

	assert.Equal(t, "203.0.113.0", event.IP)
	assert.Empty(t, event.UserAgent)
}
