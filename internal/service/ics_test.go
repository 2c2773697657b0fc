package service

import (
	"strings"
	"testing"
	"time"

	"immersion/backend/internal/model"
)

const vacationsICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//education.gouv.fr//Calendrier scolaire//FR\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:printemps-2026-zone-b\r\n" +
	"DTSTAMP:20250901T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20260411\r\n" +
	"DTEND;VALUE=DATE:20260427\r\n" +
	"SUMMARY:Vacances de Printemps\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTAMP:20250901T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20260505\r\n" +
	"SUMMARY: Pont de l'Ascension \r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:sans-titre\r\n" +
	"DTSTAMP:20250901T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20260601\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:reunion\r\n" +
	"DTSTAMP:20250901T000000Z\r\n" +
	"DTSTART:20260310T080000Z\r\n" +
	"DTEND:20260310T100000Z\r\n" +
	"SUMMARY:Conseil pédagogique\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseVacations(t *testing.T) {
	vacations, err := ParseVacations(strings.NewReader(vacationsICS), time.UTC)
	if err != nil {
		t.Fatalf("ParseVacations 失败: %v", err)
	}
	if len(vacations) != 3 {
		t.Fatalf("期望 3 个假期（无标题事件应跳过），实际 %d", len(vacations))
	}

	spring := vacations[0]
	if spring.Label != "Vacances de Printemps" || spring.ExternalID != "printemps-2026-zone-b" {
		t.Errorf("假期信息错误: %+v", spring)
	}
	if !spring.StartDate.Equal(date(2026, 4, 11)) || !spring.EndDate.Equal(date(2026, 4, 26)) {
		t.Errorf("全天事件的 DTEND 不含当日，实际 %s ~ %s",
			spring.StartDate.Format(model.DateLayout), spring.EndDate.Format(model.DateLayout))
	}

	bridge := vacations[1]
	if bridge.Label != "Pont de l'Ascension" || !bridge.StartDate.Equal(bridge.EndDate) {
		t.Errorf("缺少 DTEND 时应为单日假期: %+v", bridge)
	}
	if bridge.ExternalID != "Pont de l'Ascension@2026-05-05" {
		t.Errorf("缺少 UID 时应生成外部 ID，实际 %q", bridge.ExternalID)
	}

	if !vacations[2].StartDate.Equal(date(2026, 3, 10)) || !vacations[2].EndDate.Equal(date(2026, 3, 10)) {
		t.Errorf("带时间的事件按日期截断: %+v", vacations[2])
	}
}

func TestParseVacations_Invalid(t *testing.T) {
	if _, err := ParseVacations(strings.NewReader("ceci n'est pas un calendrier"), time.UTC); err == nil {
		t.Error("非 ICS 内容应返回错误")
	}
}

func TestSlotInvite(t *testing.T) {
	slot := &model.Slot{
		SlotID:                "slot-1",
		Date:                  date(2026, 3, 5),
		StartTime:             "10:00",
		EndTime:               "12:00",
		PlaceKind:             model.PlaceHybrid,
		Room:                  "Amphi A",
		URL:                   "https://visio.unistra.fr/analyse",
		AdditionalInformation: "Apporter une pièce d'identité",
		Course:                &model.Course{Label: "Analyse"},
	}

	out := string(SlotInvite(slot, SlotTitle(slot), SlotPlace(slot), time.UTC, testNow))
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"METHOD:REQUEST",
		"UID:slot-1@immersion",
		"DTSTART:20260305T100000Z",
		"DTEND:20260305T120000Z",
		"SUMMARY:Analyse",
		"LOCATION:Amphi A / https://visio.unistra.fr/analyse",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("日历邀请缺少 %q", want)
		}
	}
}

func TestSlotTitleAndPlace(t *testing.T) {
	if got := SlotTitle(&model.Slot{Event: &model.OffOfferEvent{Label: "JPO"}}); got != "JPO" {
		t.Errorf("期望 JPO，实际 %q", got)
	}
	if got := SlotTitle(&model.Slot{Kind: model.SlotKindVisit}); got != model.SlotKindVisit {
		t.Errorf("无关联时应返回类型，实际 %q", got)
	}
	if got := SlotPlace(&model.Slot{PlaceKind: model.PlaceFaceToFace, Room: "B12", URL: "https://x"}); got != "B12" {
		t.Errorf("线下时段不应包含链接，实际 %q", got)
	}
	if got := SlotPlace(&model.Slot{PlaceKind: model.PlaceRemote, URL: "https://x"}); got != "https://x" {
		t.Errorf("期望 https://x，实际 %q", got)
	}
}
