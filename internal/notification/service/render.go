package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skolara/skolara/internal/notification/domain"
	"go.uber.org/zap"
)

// renderForKey resolves the template for key (tenant override first, then the
// global one) and renders its title and body against data. A missing or
// unreadable template falls back to the raw key as title so the notification
// is still created.
func (s *Service) renderForKey(ctx context.Context, key string, schoolID *int64, data map[string]any) (string, *string) {
	tmpl, err := s.resolveTemplate(ctx, key, schoolID)
	if err != nil {
		s.log.Warn("template lookup failed", zap.String("key", key), zap.Error(err))
		s.metrics.Inc("notification_template_errors_total", 1, map[string]string{"key": key})
	}
	if tmpl == nil {
		return key, nil
	}

	title := renderTemplate(tmpl.TitleTemplate, data)
	var body *string
	if tmpl.BodyTemplate != nil {
		rendered := renderTemplate(*tmpl.BodyTemplate, data)
		body = &rendered
	}
	return title, body
}

func (s *Service) resolveTemplate(ctx context.Context, key string, schoolID *int64) (*domain.NotificationTemplate, error) {
	if schoolID != nil {
		tmpl, err := s.findActiveTemplateCached(ctx, key, schoolID)
		if err != nil {
			return nil, err
		}
		if tmpl != nil {
			return tmpl, nil
		}
	}
	return s.findActiveTemplateCached(ctx, key, nil)
}

// findActiveTemplateCached wraps the repository lookup in a short TTL cache.
// Misses are cached too; lookup errors are not.
func (s *Service) findActiveTemplateCached(ctx context.Context, key string, schoolID *int64) (*domain.NotificationTemplate, error) {
	if tmpl, ok := s.templates.Get(key, schoolID); ok {
		return tmpl, nil
	}
	tmpl, err := s.repo.FindActiveTemplate(ctx, s.db, key, schoolID)
	if err != nil {
		return nil, err
	}
	s.templates.Set(key, schoolID, tmpl)
	return tmpl, nil
}

// renderTemplate substitutes {{name}} placeholders with values from data.
// Unknown placeholders are left verbatim so a bad payload is visible rather
// than silently blank.
func renderTemplate(tmpl string, data map[string]any) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end += start

		b.WriteString(rest[:start])
		name := strings.TrimSpace(rest[start+2 : end])
		if value, ok := data[name]; ok {
			b.WriteString(stringify(value))
		} else {
			b.WriteString(rest[start : end+2])
		}
		rest = rest[end+2:]
	}
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}

// allowedChannels resolves the per-channel verdict for one user. in_app is
// always on, a channel with no preference row defaults to enabled, and
// min_priority gates a channel even when the row itself is enabled. A failed
// lookup fails open on everything so a preferences outage never mutes
// delivery.
func (s *Service) allowedChannels(ctx context.Context, userID int64, priority domain.Priority) map[domain.Channel]bool {
	allowed := map[domain.Channel]bool{
		domain.ChannelInApp: true,
		domain.ChannelEmail: true,
		domain.ChannelSMS:   true,
		domain.ChannelPush:  true,
	}

	prefs, err := s.repo.ListPreferences(ctx, s.db, userID)
	if err != nil {
		s.log.Warn("preference lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		s.metrics.Inc("notification_preference_errors_total", 1, nil)
		return allowed
	}

	bypass := s.quietHoursBypass()
	now := s.clock.Now()

	for _, pref := range prefs {
		if pref == nil || pref.Channel == domain.ChannelInApp {
			continue
		}
		if !pref.Enabled {
			allowed[pref.Channel] = false
			continue
		}
		if pref.MinPriority != nil && priority.Below(*pref.MinPriority) {
			allowed[pref.Channel] = false
			continue
		}
		if !bypass[priority] && inQuietHours(pref.Config, now) {
			allowed[pref.Channel] = false
		}
	}
	return allowed
}

func (s *Service) quietHoursBypass() map[domain.Priority]bool {
	bypass := map[domain.Priority]bool{}
	for _, p := range s.cfgHolder.Get().QuietHoursBypass {
		parsed := domain.ParsePriority(p, "")
		if parsed.Valid() {
			bypass[parsed] = true
		}
	}
	return bypass
}

// inQuietHours reads quiet_start/quiet_end ("HH:MM") from the preference
// config. A window may wrap midnight, e.g. 22:00 to 06:00.
func inQuietHours(cfg map[string]any, now time.Time) bool {
	start, startOK := parseClock(cfg["quiet_start"])
	end, endOK := parseClock(cfg["quiet_end"])
	if !startOK || !endOK || start == end {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func parseClock(v any) (int, bool) {
	raw, ok := v.(string)
	if !ok {
		return 0, false
	}
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
