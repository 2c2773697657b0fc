package service

import (
	"testing"

	"immersion/backend/internal/model"
)

func TestAlertSubscribe(t *testing.T) {
	env := newTestEnv(t)
	alerts := env.svc.Alert

	if err := alerts.Subscribe(env.ctx, " parent@gmail.com ", "course-1"); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	if len(env.store.alerts) != 1 {
		t.Fatalf("期望 1 条提醒，实际 %d", len(env.store.alerts))
	}
	for _, a := range env.store.alerts {
		if a.Email != "parent@gmail.com" {
			t.Errorf("邮箱应去除首尾空格，实际 %q", a.Email)
		}
	}

	requireDenial(t, alerts.Subscribe(env.ctx, "Parent@Gmail.com", "course-1"), TagAlertExists)
	requireDenial(t, alerts.Subscribe(env.ctx, "pas-un-email", "course-1"), TagInvalidEmail)
	requireDenial(t, alerts.Subscribe(env.ctx, "", "course-1"), TagInvalidEmail)
	requireDenial(t, alerts.Subscribe(env.ctx, "parent@gmail.com", "course-404"), TagUnknownCourse)

	if err := alerts.Subscribe(env.ctx, "parent@gmail.com", "course-2"); err != nil {
		t.Errorf("不同课程可以分别订阅: %v", err)
	}
}

func TestAlertUnsubscribe(t *testing.T) {
	env := newTestEnv(t)
	alerts := env.svc.Alert

	requireDenial(t, alerts.Unsubscribe(env.ctx, "parent@gmail.com", "course-1"), TagUnknownAlert)

	if err := alerts.Subscribe(env.ctx, "parent@gmail.com", "course-1"); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	if err := alerts.Unsubscribe(env.ctx, "PARENT@gmail.com", "course-1"); err != nil {
		t.Fatalf("取消订阅失败: %v", err)
	}
	if len(env.store.alerts) != 0 {
		t.Errorf("取消订阅后应删除提醒")
	}
}

func TestSendCourseAlerts(t *testing.T) {
	env := newTestEnv(t)
	alerts := env.svc.Alert
	pupil := env.addPupil("pupil-1")
	env.addSlot("slot-full", 3, 1)
	env.addImmersion("imm-1", pupil.UserID, "slot-full")
	for _, email := range []string{"a@gmail.com", "b@gmail.com"} {
		if err := alerts.Subscribe(env.ctx, email, "course-1"); err != nil {
			t.Fatalf("订阅失败: %v", err)
		}
	}

	// 没有空余名额时不发送
	n, err := alerts.SendCourseAlerts(env.ctx)
	if err != nil || n != 0 {
		t.Fatalf("无空余名额时期望 0，实际 %d %v", n, err)
	}

	// 已开始、未发布、不允许个人报名的时段都不算
	env.addSlot("slot-started", 0, 10, func(s *model.Slot) { s.StartTime, s.EndTime = "08:00", "10:00" })
	env.addSlot("slot-draft", 4, 10, func(s *model.Slot) { s.Published = false })
	env.addSlot("slot-groups", 5, 10, func(s *model.Slot) { s.AllowIndividualRegistrations = false })
	if n, _ := alerts.SendCourseAlerts(env.ctx); n != 0 {
		t.Fatalf("不可报名的时段不应触发提醒，实际 %d", n)
	}

	env.addSlot("slot-open", 6, 10)
	n, err = alerts.SendCourseAlerts(env.ctx)
	if err != nil || n != 2 {
		t.Fatalf("期望发送 2 条，实际 %d %v", n, err)
	}
	if msgs := env.store.messagesFor(model.TemplateCourseAlert); len(msgs) != 2 || msgs[0].Recipient != "a@gmail.com" {
		t.Errorf("提醒邮件错误: %+v", msgs)
	}

	// 已发送的提醒不再重复
	if n, _ := alerts.SendCourseAlerts(env.ctx); n != 0 {
		t.Errorf("重复执行不应再次发送，实际 %d", n)
	}
	if env.mailer.count() != 2 {
		t.Errorf("期望共发送 2 封，实际 %d", env.mailer.count())
	}

	// 已发送后可以重新订阅
	if err := alerts.Subscribe(env.ctx, "a@gmail.com", "course-1"); err != nil {
		t.Errorf("提醒发送后应允许重新订阅: %v", err)
	}
}

func TestAlert_SeatFreedByCancellation(t *testing.T) {
	env := newTestEnv(t)
	pupil := env.addPupil("pupil-1")
	env.addSlot("slot-1", 3, 1)
	res, err := env.register(pupil, "slot-1")
	if err != nil {
		t.Fatalf("报名失败: %v", err)
	}
	if err := env.svc.Alert.Subscribe(env.ctx, "parent@gmail.com", "course-1"); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	if err := env.svc.Registration.Cancel(env.ctx, pupil, res.Immersion.ImmersionID, "ct-student"); err != nil {
		t.Fatalf("取消失败: %v", err)
	}

	msgs := env.store.messagesFor(model.TemplateCourseAlert)
	if len(msgs) != 1 || msgs[0].Recipient != "parent@gmail.com" {
		t.Fatalf("释放名额后应立即发送提醒，实际 %+v", msgs)
	}
	for _, a := range env.store.alerts {
		if !a.EmailSent {
			t.Errorf("提醒应标记为已发送")
		}
	}
}
