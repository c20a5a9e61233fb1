package types

import "time"

// Session is the caller-visible session value: field name to a string,
// number or nested structure. Fields prefixed with "_" are transient.
type Session map[string]interface{}

// CookieField is the reserved session field holding the cookie policy.
const CookieField = "cookie"

// Cookie is the typed view of the reserved "cookie" session field.
type Cookie struct {
	OriginalMaxAge *float64   `json:"originalMaxAge"`
	Expires        *time.Time `json:"expires"`
	Path           string     `json:"path,omitempty"`
	Domain         string     `json:"domain,omitempty"`
	HTTPOnly       bool       `json:"httpOnly,omitempty"`
	Secure         bool       `json:"secure,omitempty"`
	SameSite       string     `json:"sameSite,omitempty"`
}

// MaxAge converts OriginalMaxAge (milliseconds) to a duration. A missing
// value counts as zero.
func (c Cookie) MaxAge() time.Duration {
	if c.OriginalMaxAge == nil {
		return 0
	}
	return time.Duration(*c.OriginalMaxAge * float64(time.Millisecond))
}

// Entity is one table row.
type Entity struct {
	PartitionKey string
	RowKey       string
	Timestamp    time.Time
	Properties   map[string]interface{}
}
