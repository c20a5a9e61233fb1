package tablesess

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minus-twelve/tablesess/types"
	"github.com/sirupsen/logrus"
)

const ginSessionKey = "tablesess.session"

type ManagerConfig struct {
	CookieName    string
	CookiePath    string
	MaxAge        time.Duration
	SecureCookie  bool
	SweepSchedule string
}

// Manager is gin middleware that keeps one session per client in a Store.
// Session ids come from github.com/google/uuid; they are not signed.
type Manager struct {
	store     Store
	config    ManagerConfig
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string
	scheduler *Scheduler
}

func NewManager(store Store, config ManagerConfig, log logrus.FieldLogger) *Manager {
	if config.CookieName == "" {
		config.CookieName = "sid"
	}
	if config.CookiePath == "" {
		config.CookiePath = "/"
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Manager{
		store:  store,
		config: config,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

type requestSession struct {
	id        string
	values    types.Session
	isNew     bool
	destroyed bool
}

// Middleware loads the request's session before the handler runs and
// persists it afterwards. The session cookie is issued up front so that it
// is part of the response headers whatever the handler writes.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		rs, err := m.load(ctx, c)
		if err != nil {
			m.log.WithError(err).Error("session load failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
			return
		}

		expires := m.now().Add(m.config.MaxAge)
		rs.values[types.CookieField] = m.cookie(expires)
		m.setCookie(c, rs.id, expires)
		c.Set(ginSessionKey, rs)

		c.Next()

		if rs.destroyed {
			return
		}

		persist := m.store.Refresh
		if rs.isNew {
			persist = m.store.Save
		}
		if err := persist(ctx, rs.id, rs.values); err != nil {
			m.log.WithError(err).WithField("sid", rs.id).Error("session save failed")
		}
	}
}

func (m *Manager) load(ctx context.Context, c *gin.Context) (*requestSession, error) {
	if sid, err := c.Cookie(m.config.CookieName); err == nil && sid != "" {
		values, err := m.store.Load(ctx, sid)
		if err != nil {
			return nil, err
		}
		if values != nil {
			return &requestSession{id: sid, values: values}, nil
		}
	}

	// Unknown ids are never adopted.
	return &requestSession{id: m.newID(), values: types.Session{}, isNew: true}, nil
}

func (m *Manager) cookie(expires time.Time) types.Cookie {
	maxAge := float64(m.config.MaxAge / time.Millisecond)
	expires = expires.UTC()
	return types.Cookie{
		OriginalMaxAge: &maxAge,
		Expires:        &expires,
		Path:           m.config.CookiePath,
		HTTPOnly:       true,
		Secure:         m.config.SecureCookie,
	}
}

func (m *Manager) setCookie(c *gin.Context, sid string, expires time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    sid,
		Path:     m.config.CookiePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Session returns the current request's session values. Changes made to the
// returned map are saved when the handler returns. It is nil outside the
// middleware.
func Session(c *gin.Context) types.Session {
	if rs := current(c); rs != nil {
		return rs.values
	}
	return nil
}

// SessionID returns the current request's session id.
func SessionID(c *gin.Context) string {
	if rs := current(c); rs != nil {
		return rs.id
	}
	return ""
}

func current(c *gin.Context) *requestSession {
	v, ok := c.Get(ginSessionKey)
	if !ok {
		return nil
	}
	rs, _ := v.(*requestSession)
	return rs
}

// Destroy deletes the current session and expires the client cookie.
func (m *Manager) Destroy(c *gin.Context) {
	rs := current(c)
	if rs == nil {
		return
	}
	rs.destroyed = true
	m.store.Delete(c.Request.Context(), rs.id)

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    "",
		Path:     m.config.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.config.SecureCookie,
	})
}

// RequireField aborts with 401 unless the session holds a non-empty field.
func (m *Manager) RequireField(field string) gin.HandlerFunc {
	return func(c *gin.Context) {
		values := Session(c)
		if v, ok := values[field]; !ok || v == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// StartSweeper schedules expired-session sweeps with the configured
// schedule, defaulting to hourly.
func (m *Manager) StartSweeper(ctx context.Context) error {
	schedule := m.config.SweepSchedule
	if schedule == "" {
		schedule = "@hourly"
	}

	s, err := NewScheduler(m.store, schedule, m.log)
	if err != nil {
		return err
	}
	m.scheduler = s
	s.Start(ctx)
	return nil
}

// Close stops the sweeper, waiting for a running sweep.
func (m *Manager) Close() {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
}

func (m *Manager) CookieName() string {
	return m.config.CookieName
}

func (m *Manager) MaxAge() time.Duration {
	return m.config.MaxAge
}
