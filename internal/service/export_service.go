package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var ErrExportGenerateFail = errors.New("生成 Excel 文件失败")

// ExportService 导出业务接口
// 导出以 bytes.Buffer 返回，由 Handler 层或定时任务决定写入位置
type ExportService interface {
	// ExportSlotAttendees 导出时段报名名单
	ExportSlotAttendees(ctx context.Context, actor *model.User, slotID string) (*bytes.Buffer, string, error)
	// ExportStatistics 导出年度统计
	ExportStatistics(stat *model.AnnualStatistic) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

var attendanceLabels = map[int]string{
	model.AttendanceNotEntered: "未录入",
	model.AttendanceAttended:   "出席",
	model.AttendanceAbsent:     "缺席",
}

// ═══════════════════════════════════════════════════════════
// ExportSlotAttendees — 时段报名名单
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 标题行：课程名 日期 时间
//   - 表头：姓 / 名 / 邮箱 / 报名时间 / 出勤
//   - 仅包含有效报名，按姓排序

func (s *exportService) ExportSlotAttendees(ctx context.Context, actor *model.User, slotID string) (*bytes.Buffer, string, error) {
	slot, err := s.repo.Slot.GetByID(ctx, slotID)
	if err != nil {
		return nil, "", notFoundOr(err, TagUnknownSlot)
	}
	if d := Authorize(actor, OpSetAttendance, Target{Slot: slot}); d != nil {
		return nil, "", d
	}

	immersions, err := s.repo.Immersion.ListBySlot(ctx, slotID, true)
	if err != nil {
		s.logger.Error("查询时段报名失败", zap.String("slot_id", slotID), zap.Error(err))
		return nil, "", err
	}
	sort.SliceStable(immersions, func(i, j int) bool {
		return lastName(&immersions[i]) < lastName(&immersions[j])
	})

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "报名名单"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "B", 18)
	f.SetColWidth(sheetName, "C", "C", 32)
	f.SetColWidth(sheetName, "D", "E", 18)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	title := fmt.Sprintf("%s %s %s-%s", SlotTitle(slot), slot.Date.Format(model.DateLayout), slot.StartTime, slot.EndTime)
	f.SetCellValue(sheetName, "A1", title)
	f.MergeCell(sheetName, "A1", "E1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	row := 2
	for i, h := range []string{"姓", "名", "邮箱", "报名时间", "出勤"} {
		f.SetCellValue(sheetName, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell("E", row), headerStyle)

	row = 3
	for _, imm := range immersions {
		if imm.User != nil {
			f.SetCellValue(sheetName, cell("A", row), imm.User.LastName)
			f.SetCellValue(sheetName, cell("B", row), imm.User.FirstName)
			f.SetCellValue(sheetName, cell("C", row), imm.User.Email)
		}
		f.SetCellValue(sheetName, cell("D", row), imm.RegistrationDate.Format("2006-01-02 15:04"))
		f.SetCellValue(sheetName, cell("E", row), attendanceLabels[imm.AttendanceStatus])
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("报名名单_%s_%s.xlsx", slot.Date.Format(model.DateLayout), slot.StartTime), nil
}

// ═══════════════════════════════════════════════════════════
// ExportStatistics — 年度统计
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportStatistics(stat *model.AnnualStatistic) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "年度统计"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 14)

	rows := []struct {
		label string
		value interface{}
	}{
		{"学年", stat.YearLabel},
		{"报名高中生", stat.PupilsRegistered},
		{"报名大学生", stat.StudentsRegistered},
		{"报名访客", stat.VisitorsRegistered},
		{"有效报名", stat.ImmersionsLive},
		{"已取消报名", stat.ImmersionsCancelled},
		{"出席人次", stat.ImmersionsAttended},
		{"团体报名", stat.GroupImmersions},
		{"时段数", stat.Slots},
		{"已发布课程", stat.CoursesPublished},
		{"签约高中", stat.HighSchoolsConvention},
	}
	for i, r := range rows {
		f.SetCellValue(sheetName, cell("A", i+1), r.label)
		f.SetCellValue(sheetName, cell("B", i+1), r.value)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, fmt.Sprintf("annual_statistics_%s.xlsx", stat.YearLabel), nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func lastName(imm *model.Immersion) string {
	if imm.User == nil {
		return ""
	}
	return imm.User.LastName
}
