package service

import (
	"testing"

	"github.com/xuri/excelize/v2"

	"immersion/backend/internal/model"
)

func TestExportSlotAttendees(t *testing.T) {
	env := newTestEnv(t)
	b := env.addPupil("pupil-b")
	a := env.addPupil("pupil-a")
	c := env.addPupil("pupil-c")
	env.addSlot("slot-1", 3, 10)
	env.addImmersion("imm-b", b.UserID, "slot-1")
	env.addImmersion("imm-a", a.UserID, "slot-1")
	env.addImmersion("imm-c", c.UserID, "slot-1")
	env.store.immersions["imm-a"].AttendanceStatus = model.AttendanceAttended
	ct := "ct-student"
	env.store.immersions["imm-c"].CancellationTypeID = &ct

	buf, filename, err := env.svc.Export.ExportSlotAttendees(env.ctx, env.speaker, "slot-1")
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if filename != "报名名单_2026-03-05_10:00.xlsx" {
		t.Errorf("文件名错误: %s", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("打开导出文件失败: %v", err)
	}
	defer f.Close()

	sheet := "报名名单"
	if title, _ := f.GetCellValue(sheet, "A1"); title != "Analyse 2026-03-05 10:00-12:00" {
		t.Errorf("标题行错误: %q", title)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("读取行失败: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("期望标题 + 表头 + 2 条有效报名，实际 %d 行", len(rows))
	}
	if rows[2][0] != "pupil-a" || rows[2][4] != "出席" {
		t.Errorf("第一条应为 pupil-a 且已出席，实际 %v", rows[2])
	}
	if rows[3][0] != "pupil-b" || rows[3][2] != "pupil-b@lycee.fr" || rows[3][4] != "未录入" {
		t.Errorf("第二条错误: %v", rows[3])
	}
}

func TestExportSlotAttendees_Denials(t *testing.T) {
	env := newTestEnv(t)
	pupil := env.addPupil("pupil-1")
	env.addSlot("slot-1", 3, 10)

	_, _, err := env.svc.Export.ExportSlotAttendees(env.ctx, env.operator, "slot-404")
	requireDenial(t, err, TagUnknownSlot)
	_, _, err = env.svc.Export.ExportSlotAttendees(env.ctx, pupil, "slot-1")
	requireDenial(t, err, TagNotAuthorized)
}

func TestExportStatistics(t *testing.T) {
	env := newTestEnv(t)
	stat := &model.AnnualStatistic{
		YearLabel:        "2025-2026",
		PupilsRegistered: 120,
		ImmersionsLive:   310,
		Slots:            42,
	}

	buf, filename, err := env.svc.Export.ExportStatistics(stat)
	if err != nil {
		t.Fatalf("导出统计失败: %v", err)
	}
	if filename != "annual_statistics_2025-2026.xlsx" {
		t.Errorf("文件名错误: %s", filename)
	}
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("打开导出文件失败: %v", err)
	}
	defer f.Close()

	checks := map[string]string{"A1": "学年", "B1": "2025-2026", "B2": "120", "B5": "310", "B9": "42"}
	for axis, want := range checks {
		if got, _ := f.GetCellValue("年度统计", axis); got != want {
			t.Errorf("%s 期望 %q，实际 %q", axis, want, got)
		}
	}
}
