package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"immersion/backend/config"
	"immersion/backend/internal/dto"
	"immersion/backend/internal/model"
	"immersion/backend/internal/repository"
	"immersion/backend/pkg/metrics"
)

// 定时命令名称
const (
	JobAnnualPurge                    = "annual_purge"
	JobAnnualStatistics               = "annual_statistics"
	JobAutoImmersionCancellation      = "auto_immersion_cancellation"
	JobSendCourseAlerts               = "send_course_alerts"
	JobSendSlotReminder               = "send_slot_reminder"
	JobSendSpeakerSlotReminder        = "send_speaker_slot_reminder"
	JobSendComponentsSlotsReminder    = "send_components_slots_reminder"
	JobSendClosedRegistrationReminder = "send_slot_reminder_on_closed_registrations"
	JobSendSlotEvaluationMessage      = "send_slot_evaluation_message"
	JobSendPendingValidations         = "send_pending_validations_notification"
	JobGenerateMailingListFiles       = "generate_mailing_list_subscribers_files"
	JobDeleteUnactivatedAccounts      = "delete_unactivated_accounts"
	JobImportInstitutions             = "import_higher_education_institutes"
	JobImportUAI                      = "import_uai"
	JobImportVacations                = "import_vacations"
)

// ── 定时任务模块业务错误 ──

var (
	ErrUnknownCommand = errors.New("未知的命令")
	// ErrJobConfig 配置缺失或无效（命令行退出码 2）
	ErrJobConfig = errors.New("定时任务配置错误")
)

// JobOptions 命令参数
type JobOptions struct {
	// Source 导入类命令的数据来源（文件路径或 URL）
	Source string
}

// JobService 定时命令业务接口
// 每个命令基于已发送标志或消息去重键保证可重复执行
type JobService interface {
	Run(ctx context.Context, command string, opts JobOptions) (*dto.JobResult, error)
	Commands() []string
}

// JobDeps JobService 依赖
type JobDeps struct {
	Config       *config.Config
	Repo         *repository.Repository
	Calendar     CalendarService
	Registration RegistrationService
	Alerts       AlertService
	Export       ExportService
	Notifier     Notifier
	Clock        Clock
	Location     *time.Location
	Metrics      *metrics.Metrics
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

type jobFunc func(ctx context.Context, opts JobOptions) (int, string, error)

type jobService struct {
	JobDeps
	jobs map[string]jobFunc
}

// NewJobService 创建 JobService 实例
func NewJobService(deps JobDeps) JobService {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: deps.Config.Jobs.HTTPTimeout}
	}
	s := &jobService{JobDeps: deps}
	s.jobs = map[string]jobFunc{
		JobAnnualPurge:                    s.annualPurge,
		JobAnnualStatistics:               s.annualStatistics,
		JobAutoImmersionCancellation:      s.autoImmersionCancellation,
		JobSendCourseAlerts:               s.sendCourseAlerts,
		JobSendSlotReminder:               s.sendSlotReminder,
		JobSendSpeakerSlotReminder:        s.sendSpeakerSlotReminder,
		JobSendComponentsSlotsReminder:    s.sendComponentsSlotsReminder,
		JobSendClosedRegistrationReminder: s.sendClosedRegistrationReminder,
		JobSendSlotEvaluationMessage:      s.sendSlotEvaluationMessage,
		JobSendPendingValidations:         s.sendPendingValidations,
		JobGenerateMailingListFiles:       s.generateMailingListFiles,
		JobDeleteUnactivatedAccounts:      s.deleteUnactivatedAccounts,
		JobImportInstitutions:             s.importInstitutions,
		JobImportUAI:                      s.importUAI,
		JobImportVacations:                s.importVacations,
	}
	return s
}

// Commands 已注册的命令（按名称排序）
func (s *jobService) Commands() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ────────────────────── Run ──────────────────────

// Run 执行命令并写入 job_logs
func (s *jobService) Run(ctx context.Context, command string, opts JobOptions) (*dto.JobResult, error) {
	fn, ok := s.jobs[command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	start := time.Now()
	entry := &model.JobLog{Command: command, StartedAt: s.Clock.Now()}
	if err := s.Repo.JobLog.Create(ctx, entry); err != nil {
		s.Logger.Warn("写入任务日志失败", zap.String("command", command), zap.Error(err))
	}

	count, message, err := fn(ctx, opts)
	result := &dto.JobResult{Command: command, Success: err == nil, Message: message, Count: count}
	if err != nil {
		result.Message = err.Error()
		s.Logger.Error("定时任务执行失败", zap.String("command", command), zap.Error(err))
	} else {
		s.Logger.Info("定时任务执行完成",
			zap.String("command", command),
			zap.Int("count", count),
			zap.String("message", message),
		)
	}

	finished := s.Clock.Now()
	entry.Success = result.Success
	entry.Message = result.Message
	entry.FinishedAt = &finished
	if entry.JobLogID != "" {
		if uerr := s.Repo.JobLog.Update(ctx, entry); uerr != nil {
			s.Logger.Warn("更新任务日志失败", zap.String("command", command), zap.Error(uerr))
		}
	}
	s.Metrics.ObserveJob(command, start, result.Success)
	return result, err
}

// IsConfigError 配置类失败（缺少设置、没有启用学年等）
func IsConfigError(err error) bool {
	if errors.Is(err, ErrJobConfig) {
		return true
	}
	if d, ok := AsDenial(err); ok {
		return d.Kind() == KindConfiguration
	}
	return false
}

func (s *jobService) today() time.Time {
	return model.DateOf(s.Clock.Now(), s.Location)
}

// ════════════════════════════════════════════════════════════
// 年度清理与统计
// ════════════════════════════════════════════════════════════

// annualPurge 先生成年度统计，成功后清空本学年数据
func (s *jobService) annualPurge(ctx context.Context, opts JobOptions) (int, string, error) {
	year, err := s.Calendar.ActiveYear(ctx)
	if err != nil {
		return 0, "", err
	}
	if _, _, err := s.annualStatistics(ctx, opts); err != nil {
		return 0, "", fmt.Errorf("年度统计失败，清理已取消: %w", err)
	}

	today := s.today()
	var alerts, immersions, groups, slots, accounts int64
	err = s.Repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if alerts, err = tx.Alert.DeleteAll(ctx); err != nil {
			return err
		}
		if immersions, err = tx.Immersion.DeleteAll(ctx); err != nil {
			return err
		}
		if groups, err = tx.GroupImmersion.DeleteAll(ctx); err != nil {
			return err
		}
		if slots, err = tx.Slot.DeleteAll(ctx); err != nil {
			return err
		}
		if accounts, err = tx.User.DeleteByRoles(ctx, model.AttendeeRoles); err != nil {
			return err
		}
		if err = tx.Calendar.PurgeYear(ctx, year.YearID, today); err != nil {
			return err
		}
		return tx.Offer.UnpublishAll(ctx)
	})
	if err != nil {
		return 0, "", err
	}

	msg := fmt.Sprintf("已删除 %d 条提醒订阅、%d 条个人报名、%d 条团体报名、%d 个时段、%d 个账号",
		alerts, immersions, groups, slots, accounts)
	return int(immersions + groups), msg, nil
}

// annualStatistics 保存年度统计快照并导出工作簿
func (s *jobService) annualStatistics(ctx context.Context, _ JobOptions) (int, string, error) {
	year, err := s.Calendar.ActiveYear(ctx)
	if err != nil {
		return 0, "", err
	}
	stat, err := s.Repo.Stats.Collect(ctx, year.Label)
	if err != nil {
		return 0, "", fmt.Errorf("统计年度数据失败: %w", err)
	}
	if err := s.Repo.Stats.Save(ctx, stat); err != nil {
		return 0, "", fmt.Errorf("保存年度统计失败: %w", err)
	}

	buf, filename, err := s.Export.ExportStatistics(stat)
	if err != nil {
		return 0, "", err
	}
	dir := s.Config.Jobs.StatisticsDir
	if err := ensureWritableDir(dir); err != nil {
		return 0, "", err
	}
	path := filepath.Join(dir, filename)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return 0, "", err
	}
	return 1, "年度统计已写入 " + path, nil
}

// ════════════════════════════════════════════════════════════
// 证明文件过期自动取消
// ════════════════════════════════════════════════════════════

// autoImmersionCancellation 取消证明文件已过期用户在 [今天, 今天+N 天] 内的报名
func (s *jobService) autoImmersionCancellation(ctx context.Context, _ JobOptions) (int, string, error) {
	ct, err := s.Repo.CancelType.GetByCode(ctx, model.CancelTypeAttestationCode)
	if err != nil || !ct.System {
		return 0, "", fmt.Errorf("%w: 缺少系统取消原因 %s", ErrJobConfig, model.CancelTypeAttestationCode)
	}

	today := s.today()
	horizon := today.AddDate(0, 0, s.Config.Registration.AutoSlotUnsubscribeDelay)
	userIDs, err := s.Repo.Record.ListUserIDsWithExpiredAttestations(ctx, today)
	if err != nil {
		return 0, "", err
	}
	immersions, err := s.Repo.Immersion.ListLiveByUsersBetween(ctx, userIDs, today, horizon)
	if err != nil {
		return 0, "", err
	}

	cancelled := 0
	for _, imm := range immersions {
		err := s.Registration.SystemCancel(ctx, imm.ImmersionID, model.CancelTypeAttestationCode, model.TemplateAttestationCancellation)
		if err != nil {
			if _, ok := AsDenial(err); ok {
				s.Logger.Info("跳过自动取消", zap.String("immersion_id", imm.ImmersionID), zap.Error(err))
				continue
			}
			return cancelled, "", err
		}
		cancelled++
	}
	return cancelled, fmt.Sprintf("已取消 %d 条报名", cancelled), nil
}

// ════════════════════════════════════════════════════════════
// 提醒与通知
// ════════════════════════════════════════════════════════════

func (s *jobService) sendCourseAlerts(ctx context.Context, _ JobOptions) (int, string, error) {
	n, err := s.Alerts.SendCourseAlerts(ctx)
	if err != nil {
		return n, "", err
	}
	return n, fmt.Sprintf("已发送 %d 条名额提醒", n), nil
}

// sendSlotReminder N 天后的已发布时段，向每条有效报名发送一次提醒
func (s *jobService) sendSlotReminder(ctx context.Context, _ JobOptions) (int, string, error) {
	target := s.today().AddDate(0, 0, s.Config.Registration.NbDaysSlotReminder)
	slots, err := s.Repo.Slot.ListByDateRange(ctx, target, target, true)
	if err != nil {
		return 0, "", err
	}
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		ids = append(ids, slot.SlotID)
	}
	immersions, err := s.Repo.Immersion.ListLiveBySlots(ctx, ids)
	if err != nil {
		return 0, "", err
	}

	sent := 0
	for _, imm := range immersions {
		if imm.ReminderSent || imm.User == nil || imm.Slot == nil {
			continue
		}
		vars := slotVars(imm.Slot, s.Location)
		vars["name"] = imm.User.FullName()
		vars["immersion_id"] = imm.ImmersionID
		n := s.Notifier.Emit(ctx, Event{
			Template:   model.TemplateSlotReminder,
			Recipients: []string{imm.User.Email},
			Vars:       vars,
			DedupKey:   model.TemplateSlotReminder + ":" + imm.ImmersionID,
		})
		sent += n
		// 投递失败不打标记，下次执行重试
		if n == 0 {
			continue
		}
		if err := s.Repo.Immersion.MarkReminderSent(ctx, imm.ImmersionID); err != nil {
			s.Logger.Warn("标记提醒已发送失败", zap.String("immersion_id", imm.ImmersionID), zap.Error(err))
		}
	}
	return sent, fmt.Sprintf("%s 的时段已发送 %d 条提醒", target.Format(model.DateLayout), sent), nil
}

// sendSpeakerSlotReminder N 天后仍可报名且有报名的时段，提醒授课人与结构负责人
func (s *jobService) sendSpeakerSlotReminder(ctx context.Context, _ JobOptions) (int, string, error) {
	now := s.Clock.Now()
	target := s.today().AddDate(0, 0, s.Config.Registration.NbDaysSpeakerSlotReminder)
	slots, err := s.Repo.Slot.ListByDateRange(ctx, target, target, true)
	if err != nil {
		return 0, "", err
	}

	sent := 0
	for i := range slots {
		slot := &slots[i]
		if slot.ReminderNotificationSent || !slot.RegistrationLimitDate(s.Location).After(now) {
			continue
		}
		registered, err := s.hasRegistrations(ctx, slot)
		if err != nil {
			return sent, "", err
		}
		if !registered {
			continue
		}
		key := model.TemplateSpeakerReminder + ":" + slot.SlotID
		sent += s.Notifier.Emit(ctx,
			Event{
				Template:   model.TemplateSpeakerReminder,
				Recipients: s.speakerEmails(ctx, slot),
				Vars:       slotVars(slot, s.Location),
				DedupKey:   key,
			},
			Event{
				Template:   model.TemplateClosedStructure,
				Recipients: s.managerEmails(ctx, slot),
				Vars:       slotVars(slot, s.Location),
				DedupKey:   key + ":managers",
			},
		)
	}
	return sent, fmt.Sprintf("已发送 %d 条授课人提醒", sent), nil
}

// sendClosedRegistrationReminder 报名截止后把报名名单发给授课人与结构负责人，每个时段一次
func (s *jobService) sendClosedRegistrationReminder(ctx context.Context, _ JobOptions) (int, string, error) {
	now := s.Clock.Now()
	slots, err := s.Repo.Slot.ListPendingClosedReminder(ctx, s.today())
	if err != nil {
		return 0, "", err
	}

	sent := 0
	for i := range slots {
		slot := &slots[i]
		if slot.RegistrationLimitDate(s.Location).After(now) {
			continue
		}
		live, err := s.Repo.Immersion.CountLiveBySlot(ctx, slot.SlotID)
		if err != nil {
			return sent, "", err
		}
		if live == 0 {
			continue
		}
		vars := slotVars(slot, s.Location)
		vars["registered"] = live
		n := s.Notifier.Emit(ctx,
			Event{
				Template:   model.TemplateClosedSpeaker,
				Recipients: s.speakerEmails(ctx, slot),
				Vars:       vars,
				DedupKey:   model.TemplateClosedSpeaker + ":" + slot.SlotID,
			},
			Event{
				Template:   model.TemplateClosedStructure,
				Recipients: s.managerEmails(ctx, slot),
				Vars:       vars,
				DedupKey:   model.TemplateClosedStructure + ":" + slot.SlotID,
			},
		)
		sent += n
		if n == 0 {
			continue
		}
		if err := s.Repo.Slot.MarkReminderNotificationSent(ctx, slot.SlotID); err != nil {
			s.Logger.Warn("标记时段提醒已发送失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		}
	}
	return sent, fmt.Sprintf("已发送 %d 条截止提醒", sent), nil
}

// sendComponentsSlotsReminder 在配置的星期执行，向结构负责人发送第 N 周的时段清单
func (s *jobService) sendComponentsSlotsReminder(ctx context.Context, _ JobOptions) (int, string, error) {
	weekday, err := s.Config.Registration.ReminderWeekday()
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrJobConfig, err)
	}
	today := s.today()
	if today.Weekday() != weekday {
		return 0, "今天不是执行日，跳过", nil
	}
	closed, err := s.Calendar.IsVacationOrHoliday(ctx, today.AddDate(0, 0, 1))
	if err != nil {
		return 0, "", err
	}
	if closed {
		return 0, "明天为假期，跳过", nil
	}

	from, to, err := s.Calendar.NextWorkingRange(ctx, today, s.Config.Registration.NbWeeksStructuresSlotReminder)
	if err != nil {
		return 0, "", err
	}
	slots, err := s.Repo.Slot.ListByDateRange(ctx, from, to, true)
	if err != nil {
		return 0, "", err
	}
	byStructure := make(map[string][]map[string]interface{})
	for i := range slots {
		if slots[i].StructureID == nil {
			continue
		}
		id := *slots[i].StructureID
		byStructure[id] = append(byStructure[id], slotVars(&slots[i], s.Location))
	}

	structures, err := s.Repo.Establishment.ListStructures(ctx)
	if err != nil {
		return 0, "", err
	}
	sent := 0
	for _, str := range structures {
		list := byStructure[str.StructureID]
		if !str.Active || len(list) == 0 {
			continue
		}
		managers, err := s.Repo.User.ListStructureManagers(ctx, str.StructureID)
		if err != nil {
			return sent, "", err
		}
		sent += s.Notifier.Emit(ctx, Event{
			Template:   model.TemplateStructureWeekly,
			Recipients: emailsOf(managers),
			Vars: map[string]interface{}{
				"structure": str.Label,
				"from":      from.Format(model.DateLayout),
				"to":        to.Format(model.DateLayout),
				"slots":     list,
			},
			DedupKey: model.TemplateStructureWeekly + ":" + str.StructureID + ":" + from.Format(model.DateLayout),
		})
	}
	return sent, fmt.Sprintf("%s 至 %s 的时段清单已发送 %d 封", from.Format(model.DateLayout), to.Format(model.DateLayout), sent), nil
}

// sendSlotEvaluationMessage 时段结束后发送评价问卷链接，每条报名一次
func (s *jobService) sendSlotEvaluationMessage(ctx context.Context, _ JobOptions) (int, string, error) {
	now := s.Clock.Now()
	immersions, err := s.Repo.Immersion.ListPendingSurvey(ctx, s.today())
	if err != nil {
		return 0, "", err
	}

	sent := 0
	for _, imm := range immersions {
		if imm.Slot == nil || imm.User == nil || imm.Slot.EndAt(s.Location).After(now) {
			continue
		}
		vars := slotVars(imm.Slot, s.Location)
		vars["name"] = imm.User.FullName()
		vars["immersion_id"] = imm.ImmersionID
		n := s.Notifier.Emit(ctx, Event{
			Template:   model.TemplateEvaluation,
			Recipients: []string{imm.User.Email},
			Vars:       vars,
			DedupKey:   model.TemplateEvaluation + ":" + imm.ImmersionID,
		})
		sent += n
		if n == 0 {
			continue
		}
		if err := s.Repo.Immersion.MarkSurveySent(ctx, imm.ImmersionID); err != nil {
			s.Logger.Warn("标记问卷已发送失败", zap.String("immersion_id", imm.ImmersionID), zap.Error(err))
		}
	}
	return sent, fmt.Sprintf("已发送 %d 条评价问卷", sent), nil
}

// sendPendingValidations 通知有待审核档案的高中负责人（每天每所高中一次）
func (s *jobService) sendPendingValidations(ctx context.Context, _ JobOptions) (int, string, error) {
	counts, err := s.Repo.Record.CountToValidateByHighSchool(ctx)
	if err != nil {
		return 0, "", err
	}
	day := s.today().Format(model.DateLayout)

	sent := 0
	for hsID, n := range counts {
		if n == 0 {
			continue
		}
		managers, err := s.Repo.User.ListHighSchoolManagers(ctx, hsID)
		if err != nil {
			return sent, "", err
		}
		sent += s.Notifier.Emit(ctx, Event{
			Template:   model.TemplatePendingValidations,
			Recipients: emailsOf(managers),
			Vars:       map[string]interface{}{"count": n},
			DedupKey:   model.TemplatePendingValidations + ":" + hsID + ":" + day,
		})
	}
	return sent, fmt.Sprintf("已通知 %d 位高中负责人", sent), nil
}

// ════════════════════════════════════════════════════════════
// 邮件列表文件
// ════════════════════════════════════════════════════════════

// generateMailingListFiles 全局列表包含所有高中生与大学生；每个结构一个文件。
// 单个文件失败只记录日志，不影响其他文件
func (s *jobService) generateMailingListFiles(ctx context.Context, _ JobOptions) (int, string, error) {
	dir := s.Config.Jobs.MailingListDir
	if dir == "" {
		return 0, "", fmt.Errorf("%w: 未配置 jobs.mailing_list_dir", ErrJobConfig)
	}
	if err := ensureWritableDir(dir); err != nil {
		return 0, "", err
	}

	structures, err := s.Repo.Establishment.ListStructures(ctx)
	if err != nil {
		return 0, "", err
	}

	var written, failed int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	write := func(name string, load func(context.Context) ([]string, error)) {
		g.Go(func() error {
			emails, err := load(gctx)
			if err == nil {
				err = writeFileAtomic(filepath.Join(dir, filepath.Base(name)), []byte(strings.Join(emails, "\n")))
			}
			if err != nil {
				atomic.AddInt32(&failed, 1)
				s.Logger.Error("生成邮件列表文件失败", zap.String("file", name), zap.Error(err))
				return nil
			}
			atomic.AddInt32(&written, 1)
			return nil
		})
	}

	if global := s.Config.Registration.GlobalMailingList; global != "" {
		write(global, s.globalSubscribers)
	}
	for _, str := range structures {
		if str.MailingList == "" {
			continue
		}
		structureID := str.StructureID
		write(str.MailingList, func(ctx context.Context) ([]string, error) {
			return s.Repo.Immersion.ListLiveEmailsByStructure(ctx, structureID)
		})
	}
	if err := g.Wait(); err != nil {
		return int(written), "", err
	}

	msg := fmt.Sprintf("已生成 %d 个文件", written)
	if failed > 0 {
		msg += fmt.Sprintf("，%d 个失败", failed)
	}
	return int(written), msg, nil
}

func (s *jobService) globalSubscribers(ctx context.Context) ([]string, error) {
	users, err := s.Repo.User.ListActiveAttendees(ctx)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Role == model.RolePupil || u.Role == model.RoleStudent {
			emails = append(emails, u.Email)
		}
	}
	return uniqueStrings(emails), nil
}

// ════════════════════════════════════════════════════════════
// 账号清理
// ════════════════════════════════════════════════════════════

func (s *jobService) deleteUnactivatedAccounts(ctx context.Context, _ JobOptions) (int, string, error) {
	users, err := s.Repo.User.ListUnactivatedExpired(ctx, s.today())
	if err != nil {
		return 0, "", err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.UserID)
	}
	deleted, err := s.Repo.User.HardDelete(ctx, ids)
	if err != nil {
		return 0, "", err
	}
	return int(deleted), fmt.Sprintf("已删除 %d 个未激活账号", deleted), nil
}

// ════════════════════════════════════════════════════════════
// 外部目录导入
// ════════════════════════════════════════════════════════════

// institutionsPageSize 开放数据接口单页条数
const institutionsPageSize = 100

type institutionRecord struct {
	UAI        string `json:"uai"`
	Label      string `json:"uo_lib"`
	City       string `json:"com_nom"`
	Department string `json:"dep_nom"`
	Country    string `json:"pays_etranger_acheminement"`
}

type institutionPage struct {
	TotalCount int                 `json:"total_count"`
	Results    []institutionRecord `json:"results"`
}

// importInstitutions 分页拉取高校目录并按 UAI 覆盖写入
func (s *jobService) importInstitutions(ctx context.Context, opts JobOptions) (int, string, error) {
	source := opts.Source
	if source == "" {
		source = s.Config.Jobs.InstitutionsURL
	}
	if source == "" {
		return 0, "", fmt.Errorf("%w: 未配置 jobs.institutions_url", ErrJobConfig)
	}

	imported := 0
	for offset := 0; ; offset += institutionsPageSize {
		page, err := s.fetchInstitutions(ctx, source, offset)
		if err != nil {
			return imported, "", err
		}
		items := make([]model.HigherEducationInstitution, 0, len(page.Results))
		for _, r := range page.Results {
			if r.UAI == "" {
				s.Logger.Warn("高校记录缺少 UAI，已跳过", zap.String("label", r.Label))
				continue
			}
			items = append(items, model.HigherEducationInstitution{
				UAI:        r.UAI,
				Label:      r.Label,
				City:       r.City,
				Department: r.Department,
				Country:    r.Country,
				UpdatedAt:  s.Clock.Now(),
			})
		}
		if len(items) > 0 {
			if err := s.Repo.Establishment.UpsertInstitutions(ctx, items); err != nil {
				return imported, "", err
			}
		}
		imported += len(items)
		if len(page.Results) < institutionsPageSize || offset+institutionsPageSize >= page.TotalCount {
			break
		}
	}
	return imported, fmt.Sprintf("已导入 %d 所高校", imported), nil
}

func (s *jobService) fetchInstitutions(ctx context.Context, source string, offset int) (*institutionPage, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: 无效的地址 %s", ErrJobConfig, source)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(institutionsPageSize))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求高校目录失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("请求高校目录失败: HTTP %d", resp.StatusCode)
	}

	var page institutionPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&page); err != nil {
		return nil, fmt.Errorf("解析高校目录失败: %w", err)
	}
	return &page, nil
}

// uaiColumns CSV 表头别名
var uaiColumns = map[string][]string{
	"code":    {"code", "uai", "numero_uai"},
	"label":   {"label", "appellation_officielle", "libelle"},
	"city":    {"city", "libelle_commune", "commune"},
	"academy": {"academy", "libelle_academie", "academie"},
}

// importUAI 从分号分隔的 CSV 导入学校行政编码
func (s *jobService) importUAI(ctx context.Context, opts JobOptions) (int, string, error) {
	if opts.Source == "" {
		return 0, "", fmt.Errorf("%w: import_uai 需要指定 CSV 文件", ErrJobConfig)
	}
	f, err := os.Open(opts.Source)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrJobConfig, err)
	}
	defer f.Close()

	items, skipped, err := ParseUAICSV(f)
	if err != nil {
		return 0, "", err
	}
	now := s.Clock.Now()
	for i := range items {
		items[i].UpdatedAt = now
	}
	if len(items) > 0 {
		if err := s.Repo.Establishment.UpsertUAIs(ctx, items); err != nil {
			return 0, "", err
		}
	}
	return len(items), fmt.Sprintf("已导入 %d 个 UAI，跳过 %d 行", len(items), skipped), nil
}

// ParseUAICSV 解析 UAI CSV；编码不合法的行被跳过并计数
func ParseUAICSV(r io.Reader) ([]model.UAI, int, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	index := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for col, aliases := range uaiColumns {
			for _, a := range aliases {
				if h == a {
					index[col] = i
				}
			}
		}
	}
	if _, ok := index["code"]; !ok {
		return nil, 0, fmt.Errorf("CSV 缺少 UAI 编码列")
	}
	if _, ok := index["label"]; !ok {
		return nil, 0, fmt.Errorf("CSV 缺少名称列")
	}

	get := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var (
		items   []model.UAI
		skipped int
		seen    = make(map[string]struct{})
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("读取 CSV 失败: %w", err)
		}
		code := strings.ToUpper(get(row, "code"))
		if !dto.IsValidUAI(code) {
			skipped++
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		items = append(items, model.UAI{
			Code:         code,
			Label:        get(row, "label"),
			City:         get(row, "city"),
			AcademyLabel: get(row, "academy"),
		})
	}
	return items, skipped, nil
}

// importVacations 从 ICS 订阅导入假期
func (s *jobService) importVacations(ctx context.Context, opts JobOptions) (int, string, error) {
	if opts.Source == "" {
		return 0, "", fmt.Errorf("%w: import_vacations 需要指定 ICS 地址", ErrJobConfig)
	}
	var (
		body io.ReadCloser
		err  error
	)
	if strings.Contains(opts.Source, "://") {
		body, err = FetchICSContent(ctx, opts.Source, s.Config.Jobs.HTTPTimeout)
	} else {
		body, err = os.Open(opts.Source)
	}
	if err != nil {
		return 0, "", err
	}
	defer body.Close()

	vacations, err := ParseVacations(body, s.Location)
	if err != nil {
		return 0, "", err
	}
	for i := range vacations {
		if err := s.Repo.Calendar.UpsertVacation(ctx, &vacations[i]); err != nil {
			return i, "", err
		}
	}
	return len(vacations), fmt.Sprintf("已导入 %d 段假期", len(vacations)), nil
}

// ── 辅助函数 ──

func (s *jobService) hasRegistrations(ctx context.Context, slot *model.Slot) (bool, error) {
	live, err := s.Repo.Immersion.CountLiveBySlot(ctx, slot.SlotID)
	if err != nil {
		return false, err
	}
	if live > 0 {
		return true, nil
	}
	groups, err := s.Repo.GroupImmersion.ListLiveBySlot(ctx, slot.SlotID)
	if err != nil {
		return false, err
	}
	return len(groups) > 0, nil
}

func (s *jobService) speakerEmails(ctx context.Context, slot *model.Slot) []string {
	if len(slot.SpeakerIDs) == 0 {
		return nil
	}
	users, err := s.Repo.User.ListByIDs(ctx, slot.SpeakerIDs)
	if err != nil {
		s.Logger.Warn("查询授课人失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		return nil
	}
	return emailsOf(users)
}

// managerEmails 订阅了通知的结构负责人，以及接收报名名单的高中负责人
func (s *jobService) managerEmails(ctx context.Context, slot *model.Slot) []string {
	var emails []string
	if slot.StructureID != nil {
		users, err := s.Repo.User.ListStructureManagers(ctx, *slot.StructureID)
		if err != nil {
			s.Logger.Warn("查询结构负责人失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		}
		for _, u := range users {
			if u.ReceiveStructureNotifications {
				emails = append(emails, u.Email)
			}
		}
	}
	if slot.HighSchoolID != nil {
		users, err := s.Repo.User.ListHighSchoolManagers(ctx, *slot.HighSchoolID)
		if err != nil {
			s.Logger.Warn("查询高中负责人失败", zap.String("slot_id", slot.SlotID), zap.Error(err))
		}
		for _, u := range users {
			if u.ReceiveRegisteredStudentsList {
				emails = append(emails, u.Email)
			}
		}
	}
	return uniqueStrings(emails)
}

func emailsOf(users []model.User) []string {
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return emails
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: 无法创建目录 %s: %v", ErrJobConfig, dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s 不是目录", ErrJobConfig, dir)
	}
	return nil
}

// writeFileAtomic 先写临时文件再改名，读者不会看到写了一半的文件
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o640); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
