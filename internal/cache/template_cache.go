package cache

import (
	"strconv"
	"time"

	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
)

const defaultTemplateTTL = 30 * time.Second

// TemplateResolverCache stores hot-path template lookups keyed by
// (template key, school scope). Misses are cached too, so a key with no
// template does not hit the database on every notification.
type TemplateResolverCache interface {
	Get(key string, schoolID *int64) (*notificationdomain.NotificationTemplate, bool)
	Set(key string, schoolID *int64, tmpl *notificationdomain.NotificationTemplate)
	Invalidate(key string, schoolID *int64)
}

type templateEntry struct {
	tmpl *notificationdomain.NotificationTemplate
}

type templateResolverCache struct {
	entries Cache[string, templateEntry]
	ttl     time.Duration
}

func NewTemplateResolverCache() TemplateResolverCache {
	return &templateResolverCache{
		entries: NewTTLCache[string, templateEntry](),
		ttl:     defaultTemplateTTL,
	}
}

func (c *templateResolverCache) Get(key string, schoolID *int64) (*notificationdomain.NotificationTemplate, bool) {
	item, ok := c.entries.Get(cacheKey(key, schoolID))
	if !ok {
		return nil, false
	}
	return item.tmpl, true
}

func (c *templateResolverCache) Set(key string, schoolID *int64, tmpl *notificationdomain.NotificationTemplate) {
	c.entries.Set(cacheKey(key, schoolID), templateEntry{tmpl: tmpl}, c.ttl)
}

func (c *templateResolverCache) Invalidate(key string, schoolID *int64) {
	c.entries.Delete(cacheKey(key, schoolID))
}

func cacheKey(key string, schoolID *int64) string {
	if schoolID == nil {
		return key + "|global"
	}
	return key + "|" + strconv.FormatInt(*schoolID, 10)
}
