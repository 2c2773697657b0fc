package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"immersion/backend/internal/model"
)

// ── ICS ──────────────────────────────────────────────────────
//
// 两个方向：
//   - 导入：把学区假期日历（VEVENT 全天事件）解析为 Vacation
//   - 导出：为报名确认邮件生成单个时段的 .ics 附件
// ─────────────────────────────────────────────────────────────

const icsMaxFileSize = 5 * 1024 * 1024 // 5MB

// FetchICSContent 从 URL 获取 ICS 内容
func FetchICSContent(ctx context.Context, rawURL string, timeout time.Duration) (io.ReadCloser, error) {
	// webcal:// → https://
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("构造 ICS 请求失败: %w", err)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("获取 ICS 失败: HTTP %d", resp.StatusCode)
	}
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: resp.Body,
	}, nil
}

// ParseVacations 解析假期日历
// DTEND 为全天事件时按 RFC 5545 视为不含当日
func ParseVacations(reader io.Reader, loc *time.Location) ([]model.Vacation, error) {
	cal, err := ics.ParseCalendar(reader)
	if err != nil {
		return nil, fmt.Errorf("ICS 格式解析失败: %w", err)
	}

	var result []model.Vacation
	for _, evt := range cal.Events() {
		summary := evt.GetProperty(ics.ComponentPropertySummary)
		if summary == nil || strings.TrimSpace(summary.Value) == "" {
			continue
		}
		start, startAllDay, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
		if err != nil {
			continue
		}
		end, endAllDay, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc)
		if err != nil {
			end, endAllDay = start, false
		}
		if endAllDay && startAllDay && end.After(start) {
			end = end.AddDate(0, 0, -1)
		}
		if end.Before(start) {
			continue
		}

		v := model.Vacation{
			Label:     strings.TrimSpace(summary.Value),
			StartDate: model.DateOf(start, loc),
			EndDate:   model.DateOf(end, loc),
		}
		if uid := evt.GetProperty(ics.ComponentPropertyUniqueId); uid != nil {
			v.ExternalID = uid.Value
		}
		if v.ExternalID == "" {
			v.ExternalID = v.Label + "@" + v.StartDate.Format(model.DateLayout)
		}
		result = append(result, v)
	}
	return result, nil
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性，第二个返回值表示是否为全天日期
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, bool, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property %s", propName)
	}
	val := prop.Value

	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t.In(loc), false, nil
	}
	if t, err := time.Parse("20060102T150405", val); err == nil {
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), false, nil
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), false, nil
	}
	if t, err := time.Parse("20060102", val); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true, nil
	}
	return time.Time{}, false, fmt.Errorf("无法解析日期: %s", val)
}

// ── 导出 ──

// SlotInvite 生成单个时段的日历邀请
func SlotInvite(slot *model.Slot, title, location string, loc *time.Location, now time.Time) []byte {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId("-//immersion//registration//FR")

	evt := cal.AddEvent(slot.SlotID + "@immersion")
	evt.SetDtStampTime(now)
	evt.SetStartAt(slot.StartAt(loc))
	evt.SetEndAt(slot.EndAt(loc))
	evt.SetSummary(title)
	if location != "" {
		evt.SetLocation(location)
	}
	if slot.URL != "" {
		evt.SetURL(slot.URL)
	}
	if slot.AdditionalInformation != "" {
		evt.SetDescription(slot.AdditionalInformation)
	}
	return []byte(cal.Serialize())
}

// SlotTitle 时段展示名称（课程或活动名）
func SlotTitle(slot *model.Slot) string {
	switch {
	case slot.Course != nil:
		return slot.Course.Label
	case slot.Event != nil:
		return slot.Event.Label
	}
	return slot.Kind
}

// SlotPlace 时段地点描述
func SlotPlace(slot *model.Slot) string {
	parts := make([]string, 0, 2)
	if slot.Room != "" {
		parts = append(parts, slot.Room)
	}
	if slot.PlaceKind != model.PlaceFaceToFace && slot.URL != "" {
		parts = append(parts, slot.URL)
	}
	return strings.Join(parts, " / ")
}
